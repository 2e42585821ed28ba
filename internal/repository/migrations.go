package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mongodb"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CartUserIndex keeps a single cart per user. First-access upserts rely on
// it to turn a concurrent insert into a duplicate-key error.
const CartUserIndex = "carts_user_id_unique"

var ErrMissingIndex = errors.New("required index missing")

const codeNamespaceNotFound = 26

// RunMigrations applies the JSON command migrations found in migrationsPath
// (indexes, mostly) to db. The migrate instance is not closed because that
// would disconnect the shared client.
func RunMigrations(db *mongo.Database, migrationsPath string) error {
	driver, err := mongodb.WithInstance(db.Client(), &mongodb.Config{
		DatabaseName: db.Name(),
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"mongodb",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

// VerifyIndexes returns ErrMissingIndex when the carts collection lacks
// CartUserIndex, i.e. migrations were never applied to db.
func VerifyIndexes(ctx context.Context, db *mongo.Database) error {
	cur, err := db.Collection("carts").Indexes().List(ctx)
	if err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceNotFound {
			return fmt.Errorf("%w: %s (carts collection does not exist)", ErrMissingIndex, CartUserIndex)
		}
		return fmt.Errorf("list cart indexes: %w", err)
	}

	var indexes []bson.M
	if err := cur.All(ctx, &indexes); err != nil {
		return fmt.Errorf("decode cart indexes: %w", err)
	}
	for _, idx := range indexes {
		if idx["name"] == CartUserIndex {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrMissingIndex, CartUserIndex)
}
