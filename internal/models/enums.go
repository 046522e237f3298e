package models

import "strings"

// ClientType is the legal-entity kind of a client
type ClientType string

const (
	ClientTypeIndividual         ClientType = "individual"
	ClientTypeSoleProprietorship ClientType = "sole_proprietorship"
	ClientTypePartnership        ClientType = "partnership"
	ClientTypeLLP                ClientType = "llp"
	ClientTypeHUF                ClientType = "huf"
	ClientTypePrivateLimited     ClientType = "private_limited"
	ClientTypeLimitedCompany     ClientType = "limited_company"
	ClientTypeJointVenture       ClientType = "joint_venture"
	ClientTypeOnePersonCompany   ClientType = "one_person_company"
	ClientTypeNGO                ClientType = "ngo"
	ClientTypeTrust              ClientType = "trust"
	ClientTypeSection8Company    ClientType = "section_8_company"
	ClientTypeGovernmentEntity   ClientType = "government_entity"
	ClientTypeCooperativeSociety ClientType = "cooperative_society"
	ClientTypeBranchOffice       ClientType = "branch_office"
	ClientTypeAOP                ClientType = "aop"
	ClientTypeSociety            ClientType = "society"
)

var clientTypes = map[ClientType]struct{}{
	ClientTypeIndividual:         {},
	ClientTypeSoleProprietorship: {},
	ClientTypePartnership:        {},
	ClientTypeLLP:                {},
	ClientTypeHUF:                {},
	ClientTypePrivateLimited:     {},
	ClientTypeLimitedCompany:     {},
	ClientTypeJointVenture:       {},
	ClientTypeOnePersonCompany:   {},
	ClientTypeNGO:                {},
	ClientTypeTrust:              {},
	ClientTypeSection8Company:    {},
	ClientTypeGovernmentEntity:   {},
	ClientTypeCooperativeSociety: {},
	ClientTypeBranchOffice:       {},
	ClientTypeAOP:                {},
	ClientTypeSociety:            {},
}

// ParseClientType normalizes user input to a canonical client type.
// Display names such as "Sole Proprietorship" or "Section-8 Company" are accepted.
func ParseClientType(raw string) (ClientType, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	ct := ClientType(s)
	_, ok := clientTypes[ct]
	return ct, ok
}

// RequiresOrganization reports whether clients of this type must belong to an organization
func (t ClientType) RequiresOrganization() bool {
	return t != ClientTypeIndividual
}

// BalanceType is the direction of an opening balance
type BalanceType string

const (
	BalanceDebit  BalanceType = "debit"
	BalanceCredit BalanceType = "credit"
)

// ParseBalanceType accepts "debit" or "credit" in any case
func ParseBalanceType(raw string) (BalanceType, bool) {
	switch BalanceType(strings.ToLower(strings.TrimSpace(raw))) {
	case BalanceDebit:
		return BalanceDebit, true
	case BalanceCredit:
		return BalanceCredit, true
	}
	return "", false
}
