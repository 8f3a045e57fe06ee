// Package testmodel содержит небольшую схему, на которой тестируются формы.
package testmodel

import "autoform/internal/schema"

// New объявляет тестовые сущности и финализирует реестр.
//
//	Other 1-* Test            (many-to-one, обязательный внешний ключ)
//	User  *-* Group           (many-to-many через user_groups)
//	User  1-1 Account         (одиночный backref)
//	Person 1-1 Profile        (у Profile есть вкладки)
//	Animal <- Dog             (наследование, дискриминатор)
func New() *schema.Registry {
	r := schema.NewRegistry()

	r.Declare("Other").Module("demo").Label("name").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("name", schema.String, schema.NotNull())

	r.Declare("Test").Module("demo").Label("name").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("name", schema.String, schema.NotNull()).
		Column("other_id", schema.Int, schema.NotNull(), schema.ForeignKey("Other")).
		Column("notes", schema.Text).
		ManyToOne("other", "Other", "other_id", schema.Backref("tests", true))

	r.Declare("Group").Module("demo").Label("name").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("name", schema.String, schema.NotNull())

	r.Declare("User").Module("demo").Label("user_name").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("user_name", schema.String, schema.NotNull()).
		Column("email", schema.String).
		Column("password", schema.String).
		Column("active", schema.Bool).
		ManyToMany("groups", "Group", schema.JoinTable{Name: "user_groups", Local: "user_id", Remote: "group_id"},
			schema.Backref("users", true))

	r.Declare("Account").Module("demo").Label("account_name").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("account_name", schema.String, schema.NotNull()).
		ManyToOne("user", "User", "user_id", schema.Backref("account", false))

	r.Declare("Profile").Module("demo").Label("account_name").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("account_name", schema.String, schema.NotNull(), schema.Configured(schema.Tab("Account"))).
		Column("email", schema.String, schema.Configured(schema.Tab("Contact information"))).
		Column("phone", schema.String, schema.Configured(schema.Tab("Contact information"))).
		Column("note", schema.Text)

	r.Declare("Person").Module("demo").Label("name").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("name", schema.String, schema.NotNull(), schema.Configured(schema.Tab("Tab 1"))).
		ManyToOne("profile", "Profile", "profile_id", schema.Backref("person", false))

	r.Declare("Animal").Module("demo").Label("name").
		Column("id", schema.Int, schema.PrimaryKey()).
		Column("kind", schema.String, schema.Discriminator()).
		Column("name", schema.String, schema.NotNull(), schema.Configured(schema.Editable(false)))

	r.Declare("Dog").Module("demo").Extends("Animal").
		Column("breed", schema.String, schema.Configured(schema.Widget("textarea"))).
		Configure("name", schema.Viewable(false), schema.Editable(false))

	if err := r.Finalize(); err != nil {
		panic(err)
	}
	return r
}
