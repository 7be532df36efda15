package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/billjohnathan8/CS302-DonDonDevOps/internal/repository"
)

// promotionDocument представляет документ в коллекции promotions
type promotionDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	StartTime    time.Time `bson:"start_time"`
	EndTime      time.Time `bson:"end_time"`
	DiscountRate float64   `bson:"discount_rate"`
	Origin       string    `bson:"origin"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// linkDocument представляет документ в коллекции product_promotions
type linkDocument struct {
	ID          string    `bson:"_id"`
	PromotionID string    `bson:"promotion_id"`
	ProductID   string    `bson:"product_id"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// Store реализует PromotionStore используя MongoDB
// Две коллекции: promotions и product_promotions
type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	promotions *mongo.Collection
	links      *mongo.Collection
}

// NewStore создаёт новый MongoDB store
// Создаёт индексы на promotion_id и product_id в коллекции связей:
// по ним идут выборка для товара и каскадное удаление
func NewStore(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	links := db.Collection("product_promotions")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Индексы не уникальные: товар может участвовать в нескольких промоакциях
	// Если индексы уже существуют - ошибку игнорируем
	_, _ = links.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "product_id", Value: 1}}},
		{Keys: bson.D{{Key: "promotion_id", Value: 1}}},
	})

	return &Store{
		client:     client,
		db:         db,
		promotions: db.Collection("promotions"),
		links:      links,
	}
}

// FindAllPromotions возвращает все промоакции
func (s *Store) FindAllPromotions(ctx context.Context) ([]repository.Promotion, error) {
	cursor, err := s.promotions.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]repository.Promotion, 0)
	for cursor.Next(ctx) {
		var doc promotionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, toPromotion(doc))
	}
	return out, cursor.Err()
}

// SavePromotion сохраняет промоакцию через ReplaceOne с upsert
func (s *Store) SavePromotion(ctx context.Context, promotion repository.Promotion) (repository.Promotion, error) {
	doc := promotionDocument{
		ID:           promotion.ID,
		Name:         promotion.Name,
		StartTime:    promotion.StartTime.UTC(),
		EndTime:      promotion.EndTime.UTC(),
		DiscountRate: promotion.DiscountRate,
		Origin:       string(promotion.Origin),
		UpdatedAt:    time.Now().UTC(),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.promotions.ReplaceOne(ctx, bson.M{"_id": promotion.ID}, doc, opts); err != nil {
		return repository.Promotion{}, err
	}
	return promotion, nil
}

// FindPromotion загружает промоакцию по ID
// Возвращает ErrNotFound, если документа нет
func (s *Store) FindPromotion(ctx context.Context, id string) (repository.Promotion, error) {
	var doc promotionDocument
	err := s.promotions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return repository.Promotion{}, repository.ErrNotFound
		}
		return repository.Promotion{}, err
	}
	return toPromotion(doc), nil
}

// PromotionExists проверяет наличие промоакции через CountDocuments
func (s *Store) PromotionExists(ctx context.Context, id string) (bool, error) {
	n, err := s.promotions.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeletePromotion удаляет промоакцию и каскадно все её связи.
// Нативной транзакции на две коллекции нет, поэтому операция построена так,
// чтобы её было безопасно перезапустить: DeleteOne и DeleteMany идемпотентны,
// и при частичном сбое (промоакция удалена, связи нет) повторный вызов
// дочистит связи
func (s *Store) DeletePromotion(ctx context.Context, id string) error {
	if _, err := s.promotions.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return err
	}
	if _, err := s.links.DeleteMany(ctx, bson.M{"promotion_id": id}); err != nil {
		return err
	}
	return nil
}

// SaveProductPromotion сохраняет связь через ReplaceOne с upsert
func (s *Store) SaveProductPromotion(ctx context.Context, link repository.ProductPromotion) (repository.ProductPromotion, error) {
	doc := linkDocument{
		ID:          link.ID,
		PromotionID: link.PromotionID,
		ProductID:   link.ProductID,
		UpdatedAt:   time.Now().UTC(),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.links.ReplaceOne(ctx, bson.M{"_id": link.ID}, doc, opts); err != nil {
		return repository.ProductPromotion{}, err
	}
	return link, nil
}

// FindProductPromotion загружает связь по ID
func (s *Store) FindProductPromotion(ctx context.Context, id string) (repository.ProductPromotion, error) {
	var doc linkDocument
	err := s.links.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return repository.ProductPromotion{}, repository.ErrNotFound
		}
		return repository.ProductPromotion{}, err
	}
	return toLink(doc), nil
}

// FindAllProductPromotions возвращает все связи
func (s *Store) FindAllProductPromotions(ctx context.Context) ([]repository.ProductPromotion, error) {
	return s.findLinks(ctx, bson.M{})
}

// FindProductPromotions возвращает связи для указанного товара
func (s *Store) FindProductPromotions(ctx context.Context, productID string) ([]repository.ProductPromotion, error) {
	return s.findLinks(ctx, bson.M{"product_id": productID})
}

// FindPromotionLinks возвращает связи для указанной промоакции
func (s *Store) FindPromotionLinks(ctx context.Context, promotionID string) ([]repository.ProductPromotion, error) {
	return s.findLinks(ctx, bson.M{"promotion_id": promotionID})
}

// DeleteProductPromotion удаляет связь по ID
// Возвращает false, если документа не было
func (s *Store) DeleteProductPromotion(ctx context.Context, id string) (bool, error) {
	res, err := s.links.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// findLinks выполняет выборку связей по произвольному фильтру
func (s *Store) findLinks(ctx context.Context, filter bson.M) ([]repository.ProductPromotion, error) {
	cursor, err := s.links.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]repository.ProductPromotion, 0)
	for cursor.Next(ctx) {
		var doc linkDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, toLink(doc))
	}
	return out, cursor.Err()
}

func toPromotion(doc promotionDocument) repository.Promotion {
	return repository.Promotion{
		ID:           doc.ID,
		Name:         doc.Name,
		StartTime:    doc.StartTime,
		EndTime:      doc.EndTime,
		DiscountRate: doc.DiscountRate,
		Origin:       repository.PromotionOrigin(doc.Origin),
	}
}

func toLink(doc linkDocument) repository.ProductPromotion {
	return repository.ProductPromotion{
		ID:          doc.ID,
		PromotionID: doc.PromotionID,
		ProductID:   doc.ProductID,
	}
}
