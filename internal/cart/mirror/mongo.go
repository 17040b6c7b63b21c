package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avolkov/smartstore/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoMirror struct {
	collection *mongo.Collection
}

func NewMongoMirror(db *mongo.Database) *MongoMirror {
	return &MongoMirror{
		collection: db.Collection("carts"),
	}
}

// cartDoc is the stored shape. Prices travel as strings; BSON has no codec
// for decimal.Decimal and float64 would lose precision.
type cartDoc struct {
	UserID    string        `bson:"user_id"`
	Items     []lineItemDoc `bson:"items"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

type lineItemDoc struct {
	ProductID string    `bson:"product_id"`
	Name      string    `bson:"name"`
	ImageURL  string    `bson:"image_url"`
	UnitPrice string    `bson:"unit_price"`
	Quantity  int       `bson:"quantity"`
	AddedAt   time.Time `bson:"added_at"`
}

func (m *MongoMirror) Load(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDoc

	filter := bson.M{"user_id": userID}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		var decodeErr *bsoncodec.DecodeError
		if errors.As(err, &decodeErr) {
			return nil, ErrCartCorrupt
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart := &domain.Cart{
		UserID:    doc.UserID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		price, err := decimal.NewFromString(item.UnitPrice)
		if err != nil {
			return nil, ErrCartCorrupt
		}
		cart.Items = append(cart.Items, domain.LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: price,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	return cart, nil
}

func (m *MongoMirror) Save(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	items := make([]lineItemDoc, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = lineItemDoc{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  item.ImageURL,
			UnitPrice: item.UnitPrice.String(),
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		}
	}

	filter := bson.M{"user_id": cart.UserID}
	update := bson.M{"$set": bson.M{
		"user_id":    cart.UserID,
		"items":      items,
		"created_at": cart.CreatedAt,
		"updated_at": cart.UpdatedAt,
	}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (m *MongoMirror) Delete(ctx context.Context, userID string) error {
	filter := bson.M{"user_id": userID}

	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}
	return nil
}

// CreateIndexes sets up the unique user index and a TTL index so abandoned
// carts age out on their own.
func (m *MongoMirror) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
