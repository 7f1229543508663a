// Package mongo implements the storage.Store interface over a document
// store. Joins are performed server-side: FindJoined issues one
// aggregation pipeline whose conditional $lookup/$unwind stages hoist
// deck, template, note and source fields onto the card document.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/storage"
)

// DB wraps the database handle and implements storage.Store.
type DB struct {
	client *mongo.Client

	deck     *mongo.Collection
	source   *mongo.Collection
	template *mongo.Collection
	note     *mongo.Collection
	media    *mongo.Collection
	card     *mongo.Collection
}

var _ storage.Store = (*DB)(nil)

// Open connects to the given URI and ensures the unique indexes that
// back the per-user natural keys.
func Open(ctx context.Context, uri string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	mdb := client.Database("recallbox")
	db := &DB{
		client:   client,
		deck:     mdb.Collection("deck"),
		source:   mdb.Collection("source"),
		template: mdb.Collection("template"),
		note:     mdb.Collection("note"),
		media:    mdb.Collection("media"),
		card:     mdb.Collection("card"),
	}

	unique := options.Index().SetUnique(true)
	indexes := []struct {
		col  *mongo.Collection
		keys bson.D
	}{
		{db.deck, bson.D{{Key: "userId", Value: 1}, {Key: "name", Value: 1}}},
		{db.source, bson.D{{Key: "userId", Value: 1}, {Key: "h", Value: 1}}},
		{db.template, bson.D{{Key: "userId", Value: 1}, {Key: "sourceId", Value: 1}, {Key: "name", Value: 1}, {Key: "model", Value: 1}}},
		{db.media, bson.D{{Key: "userId", Value: 1}, {Key: "h", Value: 1}}},
	}
	for _, ix := range indexes {
		if _, err := ix.col.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: ix.keys, Options: unique,
		}); err != nil {
			return nil, fmt.Errorf("failed to ensure index on %s: %w", ix.col.Name(), err)
		}
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.client.Disconnect(context.Background())
}

type flatDoc struct {
	ID         string            `bson:"_id"`
	Front      string            `bson:"front"`
	Back       string            `bson:"back,omitempty"`
	Mnemonic   string            `bson:"mnemonic,omitempty"`
	SrsLevel   *int              `bson:"srsLevel,omitempty"`
	NextReview *time.Time        `bson:"nextReview,omitempty"`
	Tag        []string          `bson:"tag,omitempty"`
	Created    *time.Time        `bson:"created,omitempty"`
	Modified   *time.Time        `bson:"modified,omitempty"`
	Stat       *domain.Stat      `bson:"stat,omitempty"`
	Deck       string            `bson:"deck,omitempty"`
	Template   string            `bson:"template,omitempty"`
	Model      string            `bson:"model,omitempty"`
	TFront     string            `bson:"tFront,omitempty"`
	TBack      string            `bson:"tBack,omitempty"`
	CSS        string            `bson:"css,omitempty"`
	JS         string            `bson:"js,omitempty"`
	Key        string            `bson:"key,omitempty"`
	Data       []domain.NoteData `bson:"data,omitempty"`
	Source     string            `bson:"source,omitempty"`
	SH         string            `bson:"sH,omitempty"`
	SCreated   *time.Time        `bson:"sCreated,omitempty"`
}

func lookupStages(from, localField, as string) []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.M{
			"from":         from,
			"localField":   localField,
			"foreignField": "_id",
			"as":           as,
		}}},
		{{Key: "$unwind", Value: bson.M{
			"path":                       "$" + as,
			"preserveNullAndEmptyArrays": true,
		}}},
	}
}

func (db *DB) FindJoined(ctx context.Context, scope domain.Scope, joins storage.JoinSet) ([]*domain.Record, error) {
	pipeline := []bson.D{
		{{Key: "$match", Value: bson.M{"userId": scope.UserID}}},
	}

	if joins.Note || joins.Source {
		pipeline = append(pipeline, lookupStages("note", "noteId", "n")...)
	}
	if joins.Deck {
		pipeline = append(pipeline, lookupStages("deck", "deckId", "d")...)
	}
	if joins.Source {
		pipeline = append(pipeline, lookupStages("source", "n.sourceId", "s")...)
	}
	if joins.Template {
		pipeline = append(pipeline, lookupStages("template", "templateId", "t")...)
	}

	proj := bson.M{
		"front": 1, "back": 1, "mnemonic": 1, "srsLevel": 1,
		"nextReview": 1, "tag": 1, "created": 1, "modified": 1, "stat": 1,
	}
	if joins.Note || joins.Source {
		proj["key"] = "$n.key"
		proj["data"] = "$n.data"
	}
	if joins.Deck {
		proj["deck"] = "$d.name"
	}
	if joins.Source {
		proj["source"] = "$s.name"
		proj["sH"] = "$s.h"
		proj["sCreated"] = "$s.created"
	}
	if joins.Template {
		proj["template"] = "$t.name"
		proj["model"] = "$t.model"
		proj["tFront"] = "$t.front"
		proj["tBack"] = "$t.back"
		proj["css"] = "$t.css"
		proj["js"] = "$t.js"
	}
	pipeline = append(pipeline, bson.D{{Key: "$project", Value: proj}})

	cur, err := db.card.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate joined cards: %w", err)
	}
	defer cur.Close(ctx)

	var recs []*domain.Record
	for cur.Next(ctx) {
		var doc flatDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode joined card: %w", err)
		}
		recs = append(recs, &domain.Record{
			ID:         doc.ID,
			Front:      doc.Front,
			Back:       doc.Back,
			Mnemonic:   doc.Mnemonic,
			SrsLevel:   doc.SrsLevel,
			NextReview: doc.NextReview,
			Tag:        doc.Tag,
			Created:    doc.Created,
			Modified:   doc.Modified,
			Stat:       doc.Stat,
			Deck:       doc.Deck,
			Template:   doc.Template,
			Model:      doc.Model,
			TFront:     doc.TFront,
			TBack:      doc.TBack,
			CSS:        doc.CSS,
			JS:         doc.JS,
			Key:        doc.Key,
			Data:       doc.Data,
			Source:     doc.Source,
			SH:         doc.SH,
			SCreated:   doc.SCreated,
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate joined cards: %w", err)
	}

	return recs, nil
}

func (db *DB) CountCards(ctx context.Context, scope domain.Scope) (int, error) {
	n, err := db.card.CountDocuments(ctx, bson.M{"userId": scope.UserID})
	if err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return int(n), nil
}

type cardDoc struct {
	ID         string       `bson:"_id"`
	UserID     string       `bson:"userId"`
	DeckID     string       `bson:"deckId"`
	TemplateID string       `bson:"templateId,omitempty"`
	NoteID     string       `bson:"noteId,omitempty"`
	Front      string       `bson:"front"`
	Back       string       `bson:"back,omitempty"`
	Mnemonic   string       `bson:"mnemonic,omitempty"`
	SrsLevel   *int         `bson:"srsLevel,omitempty"`
	NextReview *time.Time   `bson:"nextReview,omitempty"`
	Tag        []string     `bson:"tag,omitempty"`
	Created    time.Time    `bson:"created"`
	Modified   *time.Time   `bson:"modified,omitempty"`
	Stat       *domain.Stat `bson:"stat,omitempty"`
}

func (db *DB) CardByID(ctx context.Context, scope domain.Scope, id string) (*domain.Card, error) {
	var doc cardDoc
	err := db.card.FindOne(ctx, bson.M{"_id": id, "userId": scope.UserID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find card %s: %w", id, err)
	}

	return &domain.Card{
		ID:         doc.ID,
		UserID:     doc.UserID,
		DeckID:     doc.DeckID,
		TemplateID: doc.TemplateID,
		NoteID:     doc.NoteID,
		Front:      doc.Front,
		Back:       doc.Back,
		Mnemonic:   doc.Mnemonic,
		SrsLevel:   doc.SrsLevel,
		NextReview: doc.NextReview,
		Tag:        doc.Tag,
		Created:    doc.Created,
		Modified:   doc.Modified,
		Stat:       doc.Stat,
	}, nil
}

func (db *DB) InsertCards(ctx context.Context, scope domain.Scope, cards []*domain.Card) error {
	if len(cards) == 0 {
		return nil
	}

	docs := make([]any, 0, len(cards))
	for _, c := range cards {
		docs = append(docs, cardDoc{
			ID:         c.ID,
			UserID:     scope.UserID,
			DeckID:     c.DeckID,
			TemplateID: c.TemplateID,
			NoteID:     c.NoteID,
			Front:      c.Front,
			Back:       c.Back,
			Mnemonic:   c.Mnemonic,
			SrsLevel:   c.SrsLevel,
			NextReview: c.NextReview,
			Tag:        c.Tag,
			Created:    c.Created,
			Modified:   c.Modified,
			Stat:       c.Stat,
		})
	}

	if _, err := db.card.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert cards: %w", err)
	}
	return nil
}

func (db *DB) UpdateCard(ctx context.Context, scope domain.Scope, id string, u storage.CardUpdate) error {
	set := bson.M{"modified": u.Modified}
	if u.Front != nil {
		set["front"] = *u.Front
	}
	if u.Back != nil {
		set["back"] = *u.Back
	}
	if u.Mnemonic != nil {
		set["mnemonic"] = *u.Mnemonic
	}
	if u.DeckID != nil {
		set["deckId"] = *u.DeckID
	}
	if u.NoteID != nil {
		set["noteId"] = *u.NoteID
	}
	if u.SrsLevel != nil {
		set["srsLevel"] = *u.SrsLevel
	}
	if u.NextReview != nil {
		set["nextReview"] = *u.NextReview
	}
	if u.Tag != nil {
		set["tag"] = *u.Tag
	}
	if u.Stat != nil {
		set["stat"] = *u.Stat
	}

	filter := bson.M{"_id": id, "userId": scope.UserID}
	if u.Guard != nil {
		if u.Guard.Modified != nil {
			filter["modified"] = *u.Guard.Modified
		} else {
			filter["modified"] = bson.M{"$exists": false}
		}
	}

	res, err := db.card.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update card %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		if _, err := db.CardByID(ctx, scope, id); err != nil {
			return err
		}
		return storage.ErrConflict
	}
	return nil
}

func (db *DB) DeleteCards(ctx context.Context, scope domain.Scope, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := db.card.DeleteMany(ctx, bson.M{
		"_id": bson.M{"$in": ids}, "userId": scope.UserID,
	}); err != nil {
		return fmt.Errorf("failed to delete cards: %w", err)
	}
	return nil
}

func (db *DB) AddTags(ctx context.Context, scope domain.Scope, ids, tags []string) error {
	if _, err := db.card.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "userId": scope.UserID},
		bson.M{
			"$set":      bson.M{"modified": time.Now()},
			"$addToSet": bson.M{"tag": bson.M{"$each": tags}},
		}); err != nil {
		return fmt.Errorf("failed to add tags: %w", err)
	}
	return nil
}

func (db *DB) RemoveTags(ctx context.Context, scope domain.Scope, ids, tags []string) error {
	if _, err := db.card.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "userId": scope.UserID},
		bson.M{
			"$set":  bson.M{"modified": time.Now()},
			"$pull": bson.M{"tag": bson.M{"$in": tags}},
		}); err != nil {
		return fmt.Errorf("failed to remove tags: %w", err)
	}
	return nil
}

func (db *DB) GetOrCreateDeck(ctx context.Context, scope domain.Scope, name string) (string, error) {
	var doc struct {
		ID string `bson:"_id"`
	}
	err := db.deck.FindOne(ctx, bson.M{"userId": scope.UserID, "name": name}).Decode(&doc)
	if err == nil {
		return doc.ID, nil
	}
	if err != mongo.ErrNoDocuments {
		return "", fmt.Errorf("failed to find deck %s: %w", name, err)
	}

	id := uuid.NewString()
	if _, err := db.deck.InsertOne(ctx, bson.M{
		"_id": id, "userId": scope.UserID, "name": name,
	}); err != nil {
		return "", fmt.Errorf("failed to create deck %s: %w", name, err)
	}
	return id, nil
}

func (db *DB) SourceByHash(ctx context.Context, scope domain.Scope, h string) (*domain.Source, error) {
	var doc struct {
		ID      string    `bson:"_id"`
		Name    string    `bson:"name"`
		H       string    `bson:"h"`
		Created time.Time `bson:"created"`
	}
	err := db.source.FindOne(ctx, bson.M{"userId": scope.UserID, "h": h}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find source by hash %s: %w", h, err)
	}
	return &domain.Source{
		ID: doc.ID, UserID: scope.UserID, Name: doc.Name, H: doc.H, Created: doc.Created,
	}, nil
}

func (db *DB) InsertSource(ctx context.Context, scope domain.Scope, s *domain.Source) error {
	_, err := db.source.InsertOne(ctx, bson.M{
		"_id": s.ID, "userId": scope.UserID, "name": s.Name,
		"h": s.H, "created": s.Created,
	})
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert source %s: %w", s.Name, err)
	}
	return nil
}

type templateDoc struct {
	ID       string `bson:"_id"`
	SourceID string `bson:"sourceId,omitempty"`
	Name     string `bson:"name"`
	Model    string `bson:"model,omitempty"`
	Front    string `bson:"front"`
	Back     string `bson:"back,omitempty"`
	CSS      string `bson:"css,omitempty"`
	JS       string `bson:"js,omitempty"`
}

func (doc *templateDoc) domain(scope domain.Scope) *domain.Template {
	return &domain.Template{
		ID: doc.ID, UserID: scope.UserID, SourceID: doc.SourceID,
		Name: doc.Name, Model: doc.Model, Front: doc.Front, Back: doc.Back,
		CSS: doc.CSS, JS: doc.JS,
	}
}

func (db *DB) FindTemplate(ctx context.Context, scope domain.Scope, name, model string) (*domain.Template, error) {
	var doc templateDoc
	err := db.template.FindOne(ctx, bson.M{
		"userId": scope.UserID, "name": name, "model": model,
	}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find template %s/%s: %w", name, model, err)
	}
	return doc.domain(scope), nil
}

func (db *DB) TemplateByID(ctx context.Context, scope domain.Scope, id string) (*domain.Template, error) {
	var doc templateDoc
	err := db.template.FindOne(ctx, bson.M{"_id": id, "userId": scope.UserID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find template %s: %w", id, err)
	}
	return doc.domain(scope), nil
}

func (db *DB) InsertTemplate(ctx context.Context, scope domain.Scope, t *domain.Template) error {
	if _, err := db.template.InsertOne(ctx, bson.M{
		"_id": t.ID, "userId": scope.UserID, "sourceId": t.SourceID,
		"name": t.Name, "model": t.Model, "front": t.Front, "back": t.Back,
		"css": t.CSS, "js": t.JS,
	}); err != nil {
		return fmt.Errorf("failed to insert template %s: %w", t.Name, err)
	}
	return nil
}

func (db *DB) UpdateTemplate(ctx context.Context, scope domain.Scope, id string, patch storage.TemplatePatch) error {
	set := bson.M{}
	if patch.Front != nil {
		set["front"] = *patch.Front
	}
	if patch.Back != nil {
		set["back"] = *patch.Back
	}
	if patch.CSS != nil {
		set["css"] = *patch.CSS
	}
	if patch.JS != nil {
		set["js"] = *patch.JS
	}
	if len(set) == 0 {
		return nil
	}

	if _, err := db.template.UpdateOne(ctx,
		bson.M{"_id": id, "userId": scope.UserID},
		bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to update template %s: %w", id, err)
	}
	return nil
}

type noteDoc struct {
	ID       string            `bson:"_id"`
	SourceID string            `bson:"sourceId,omitempty"`
	Key      string            `bson:"key,omitempty"`
	Data     []domain.NoteData `bson:"data"`
}

func (doc *noteDoc) domain(scope domain.Scope) *domain.Note {
	return &domain.Note{
		ID: doc.ID, UserID: scope.UserID, SourceID: doc.SourceID,
		Key: doc.Key, Data: doc.Data,
	}
}

func (db *DB) NoteByKey(ctx context.Context, scope domain.Scope, key string) (*domain.Note, error) {
	var doc noteDoc
	err := db.note.FindOne(ctx, bson.M{"userId": scope.UserID, "key": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note by key %s: %w", key, err)
	}
	return doc.domain(scope), nil
}

func (db *DB) NoteByID(ctx context.Context, scope domain.Scope, id string) (*domain.Note, error) {
	var doc noteDoc
	err := db.note.FindOne(ctx, bson.M{"_id": id, "userId": scope.UserID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find note %s: %w", id, err)
	}
	return doc.domain(scope), nil
}

func (db *DB) InsertNote(ctx context.Context, scope domain.Scope, n *domain.Note) error {
	if _, err := db.note.InsertOne(ctx, bson.M{
		"_id": n.ID, "userId": scope.UserID, "sourceId": n.SourceID,
		"key": n.Key, "data": n.Data,
	}); err != nil {
		return fmt.Errorf("failed to insert note %s: %w", n.Key, err)
	}
	return nil
}

func (db *DB) UpdateNoteData(ctx context.Context, scope domain.Scope, id string, data []domain.NoteData) error {
	n, err := db.NoteByID(ctx, scope, id)
	if err != nil {
		return err
	}

	merged := make([]domain.NoteData, len(n.Data))
	copy(merged, n.Data)
	for _, p := range data {
		replaced := false
		for i := range merged {
			if merged[i].Key == p.Key {
				merged[i].Value = p.Value
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, p)
		}
	}

	if _, err := db.note.UpdateOne(ctx,
		bson.M{"_id": id, "userId": scope.UserID},
		bson.M{"$set": bson.M{"data": merged}}); err != nil {
		return fmt.Errorf("failed to update note %s: %w", id, err)
	}
	return nil
}

func (db *DB) InsertMedia(ctx context.Context, scope domain.Scope, m *domain.Media) error {
	_, err := db.media.InsertOne(ctx, bson.M{
		"_id": m.ID, "userId": scope.UserID, "sourceId": m.SourceID,
		"name": m.Name, "data": m.Data, "h": m.H,
	})
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert media %s: %w", m.Name, err)
	}
	return nil
}

func (db *DB) MediaByHash(ctx context.Context, scope domain.Scope, h string) (*domain.Media, error) {
	var doc struct {
		ID       string `bson:"_id"`
		SourceID string `bson:"sourceId,omitempty"`
		Name     string `bson:"name"`
		Data     []byte `bson:"data"`
		H        string `bson:"h"`
	}
	err := db.media.FindOne(ctx, bson.M{"userId": scope.UserID, "h": h}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find media by hash %s: %w", h, err)
	}
	return &domain.Media{
		ID: doc.ID, UserID: scope.UserID, SourceID: doc.SourceID,
		Name: doc.Name, Data: doc.Data, H: doc.H,
	}, nil
}
