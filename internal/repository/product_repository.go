package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoProductStore struct {
	collection *mongo.Collection
}

func NewMongoProductStore(db *mongo.Database) ProductStore {
	return &mongoProductStore{
		collection: db.Collection("products"),
	}
}

func (m *mongoProductStore) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product

	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &product, nil
}

func (m *mongoProductStore) FindByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	products := make(map[string]*domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	cursor, err := m.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var p domain.Product
		if err := cursor.Decode(&p); err != nil {
			return nil, fmt.Errorf("failed to decode product: %w", err)
		}
		products[p.ID] = &p
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor iteration error: %w", err)
	}

	return products, nil
}

// DecrementStock runs the stock guard and the decrement as one
// findAndModify; the pipeline flips the state to out_of_stock when the
// stock lands on zero.
func (m *mongoProductStore) DecrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	filter := bson.M{
		"_id":   id,
		"stock": bson.M{"$gte": quantity},
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "stock", Value: bson.D{{Key: "$subtract", Value: bson.A{"$stock", quantity}}}},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "state", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$stock", 0}}},
					bson.D{{Key: "$eq", Value: bson.A{"$state", domain.ProductAvailable}}},
				}}},
				domain.ProductOutOfStock,
				"$state",
			}}}},
		}}},
	}

	product, err := m.findAndModify(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, errFind := m.FindByID(ctx, id); errFind != nil {
			return nil, errFind
		}
		return nil, ErrInsufficientStock
	}
	return product, err
}

func (m *mongoProductStore) IncrementStock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "stock", Value: bson.D{{Key: "$add", Value: bson.A{"$stock", quantity}}}},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "state", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$gt", Value: bson.A{"$stock", 0}}},
					bson.D{{Key: "$eq", Value: bson.A{"$state", domain.ProductOutOfStock}}},
				}}},
				domain.ProductAvailable,
				"$state",
			}}}},
		}}},
	}

	product, err := m.findAndModify(ctx, bson.M{"_id": id}, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrProductNotFound
	}
	return product, err
}

func (m *mongoProductStore) UpsertProduct(ctx context.Context, product *domain.Product) error {
	product.UpdatedAt = time.Now().UTC()
	if product.State == "" {
		product.State = domain.ProductAvailable
	}
	product.ApplyStock(product.Stock)

	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection.ReplaceOne(ctx, bson.M{"_id": product.ID}, product, opts); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (m *mongoProductStore) findAndModify(ctx context.Context, filter interface{}, update mongo.Pipeline) (*domain.Product, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var product domain.Product
	err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update product stock: %w", err)
	}
	return &product, nil
}
