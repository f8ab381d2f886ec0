package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

const sweetsCollection = "sweets"

type sweetDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	Category  string             `bson:"category"`
	Price     float64            `bson:"price"`
	Quantity  int                `bson:"quantity"`
	CreatedBy string             `bson:"createdBy"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d sweetDocument) toDomain() domain.Sweet {
	return domain.Sweet{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Category:  domain.Category(d.Category),
		Price:     d.Price,
		Quantity:  d.Quantity,
		CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type MongoAdapter struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoAdapter(db *mongo.Database) *MongoAdapter {
	return &MongoAdapter{
		coll: db.Collection(sweetsCollection),
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// EnsureIndexes creates the search and listing indexes. It is idempotent.
func (m *MongoAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: "text"}, {Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "price", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create sweet indexes: %w", err)
	}
	return nil
}

func (m *MongoAdapter) Ping(ctx context.Context) error {
	return m.coll.Database().Client().Ping(ctx, nil)
}

func (m *MongoAdapter) FindAll(ctx context.Context) ([]domain.Sweet, error) {
	return m.find(ctx, bson.M{})
}

func (m *MongoAdapter) FindByID(ctx context.Context, id string) (*domain.Sweet, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var doc sweetDocument
	err = m.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find sweet: %w", err)
	}

	s := doc.toDomain()
	return &s, nil
}

func (m *MongoAdapter) FindByFilter(ctx context.Context, filter domain.SweetFilter) ([]domain.Sweet, error) {
	return m.find(ctx, mongoFilter(filter))
}

// mongoFilter translates the domain predicate into a query document. The
// name is matched as a literal, case-insensitive substring.
func mongoFilter(f domain.SweetFilter) bson.M {
	query := bson.M{}
	if f.NameContains != "" {
		query["name"] = bson.M{"$regex": regexp.QuoteMeta(f.NameContains), "$options": "i"}
	}
	if f.Category != nil {
		query["category"] = string(*f.Category)
	}
	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		query["price"] = price
	}
	return query
}

func (m *MongoAdapter) find(ctx context.Context, query bson.M) ([]domain.Sweet, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := m.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("query sweets: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []sweetDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode sweets: %w", err)
	}

	sweets := make([]domain.Sweet, 0, len(docs))
	for _, d := range docs {
		sweets = append(sweets, d.toDomain())
	}
	return sweets, nil
}

func (m *MongoAdapter) Insert(ctx context.Context, sweet domain.Sweet) (*domain.Sweet, error) {
	if err := sweet.Validate(); err != nil {
		return nil, err
	}

	now := m.now()
	doc := sweetDocument{
		ID:        primitive.NewObjectID(),
		Name:      sweet.Name,
		Category:  string(sweet.Category),
		Price:     sweet.Price,
		Quantity:  sweet.Quantity,
		CreatedBy: sweet.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert sweet: %w", err)
	}

	s := doc.toDomain()
	return &s, nil
}

func (m *MongoAdapter) Update(ctx context.Context, id string, patch domain.SweetPatch) (*domain.Sweet, error) {
	current, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}

	merged := patch.Apply(*current)
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	set := bson.M{"updatedAt": m.now()}
	if patch.Name != nil {
		set["name"] = merged.Name
	}
	if patch.Category != nil {
		set["category"] = string(merged.Category)
	}
	if patch.Price != nil {
		set["price"] = merged.Price
	}
	if patch.Quantity != nil {
		set["quantity"] = merged.Quantity
	}

	oid, _ := primitive.ObjectIDFromHex(id)
	return m.findOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
}

func (m *MongoAdapter) Remove(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrNotFound
	}

	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete sweet: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MongoAdapter) DecrementQuantity(ctx context.Context, id string, n int) (*domain.Sweet, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	updated, err := m.findOneAndUpdate(ctx,
		bson.M{"_id": oid, "quantity": bson.M{"$gte": n}},
		bson.M{"$inc": bson.M{"quantity": -n}, "$set": bson.M{"updatedAt": m.now()}},
	)
	if !errors.Is(err, domain.ErrNotFound) {
		return updated, err
	}

	// The conditional update matched nothing: either the record is gone or
	// it holds less than n.
	current, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	return nil, &domain.InsufficientStockError{Available: current.Quantity}
}

func (m *MongoAdapter) IncrementQuantity(ctx context.Context, id string, n int) (*domain.Sweet, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	updated, err := m.findOneAndUpdate(ctx,
		bson.M{"_id": oid, "quantity": bson.M{"$lte": domain.MaxQuantity - n}},
		bson.M{"$inc": bson.M{"quantity": n}, "$set": bson.M{"updatedAt": m.now()}},
	)
	if !errors.Is(err, domain.ErrNotFound) {
		return updated, err
	}

	// Either the record is gone or adding n would pass MaxQuantity.
	current, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrInvalidQuantity
}

func (m *MongoAdapter) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*domain.Sweet, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc sweetDocument
	err := m.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update sweet: %w", err)
	}

	s := doc.toDomain()
	return &s, nil
}
