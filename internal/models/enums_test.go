package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClientType(t *testing.T) {
	cases := map[string]ClientType{
		"LLP":                 ClientTypeLLP,
		" individual ":        ClientTypeIndividual,
		"Sole Proprietorship": ClientTypeSoleProprietorship,
		"Section-8 Company":   ClientTypeSection8Company,
		"society":             ClientTypeSociety,
	}
	for in, want := range cases {
		got, ok := ParseClientType(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseClientType("corporation")
	assert.False(t, ok)
}

func TestRequiresOrganization(t *testing.T) {
	assert.False(t, ClientTypeIndividual.RequiresOrganization())
	assert.True(t, ClientTypeLLP.RequiresOrganization())
	assert.True(t, ClientTypeHUF.RequiresOrganization())
}

func TestParseBalanceType(t *testing.T) {
	bt, ok := ParseBalanceType("Credit")
	assert.True(t, ok)
	assert.Equal(t, BalanceCredit, bt)

	_, ok = ParseBalanceType("sideways")
	assert.False(t, ok)
}
