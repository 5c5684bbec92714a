package relational

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-dal-go/asceticdal/schema"
)

var (
	authorAssoc  = schema.AssociationDescriptor{Kind: schema.BelongsTo, ForeignKeyColumn: "authorId", AliasName: "author", TargetEntity: "Author"}
	reviewsAssoc = schema.AssociationDescriptor{Kind: schema.HasMany, ForeignKeyColumn: "bookId", AliasName: "reviews", TargetEntity: "Review"}
)

const selectBooks = `SELECT "t".* FROM "books" AS "t"`

func library(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(
		&schema.Entity{
			Name:         "Book",
			Table:        "books",
			Columns:      []string{"id", "title", "authorId", "createdAt"},
			Associations: []schema.AssociationDescriptor{authorAssoc, reviewsAssoc},
		},
		&schema.Entity{Name: "Author", Table: "authors", Columns: []string{"id", "name"}},
		&schema.Entity{Name: "Review", Table: "reviews", Columns: []string{"id", "bookId", "body"}},
	)
	require.NoError(t, err)
	return reg
}

func entity(t *testing.T, reg *schema.Registry, name string) *schema.Entity {
	t.Helper()
	e, found := reg.Entity(name)
	require.True(t, found)
	return e
}
