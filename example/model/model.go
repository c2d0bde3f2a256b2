// Package model declares the documents used by the example.
package model

import (
	"github.com/mickamy/docmap/odm"
)

// Model names.
const (
	Account           = "Account"
	AccountUser       = "AccountUser"
	AccountMembership = "AccountMembership"
	Project           = "Project"
)

// Schema registers the example models and resolves their associations.
func Schema() (*odm.Schema, error) {
	reg := odm.NewRegistry()

	reg.Define(Account, func(m *odm.ModelDef) {
		m.Key("name", odm.String)
		m.HasMany("account_memberships")
		m.HasManyThrough("users", "account_memberships", odm.Target(AccountUser))
		m.HasMany("projects")
	})

	reg.Define(AccountUser, func(m *odm.ModelDef) {
		m.Key("login", odm.String)
		m.HasMany("account_memberships")
		m.HasManyThrough("accounts", "account_memberships")
	})

	reg.Define(AccountMembership, func(m *odm.ModelDef) {
		m.Key("role", odm.String, odm.Default("member"))
		m.BelongsTo("account")
		m.BelongsTo("account_user")
	})

	reg.Define(Project, func(m *odm.ModelDef) {
		m.Key("title", odm.String)
		m.BelongsTo("account")
	})

	return reg.Build() //nolint:wrapcheck // schema errors are self-describing
}
