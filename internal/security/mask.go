package security

// UsernameMask prefixes every masked username
const UsernameMask = "******"

// MaskUsername keeps only the last four characters of a username
func MaskUsername(username string) string {
	r := []rune(username)
	if len(r) > 4 {
		r = r[len(r)-4:]
	}
	return UsernameMask + string(r)
}
