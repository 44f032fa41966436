package repository

import (
	"context"
	"errors"
	"fmt"
	"masbaha/internal/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// roomDocument keeps a room and its roster in one document so resets and
// taps commit atomically. Rev is the compare-and-swap token.
type roomDocument struct {
	Code         string                        `bson:"_id"`
	Room         *model.Room                   `bson:"room"`
	Participants map[string]*model.Participant `bson:"participants"`
	Rev          int64                         `bson:"rev"`
	ExpiresAt    time.Time                     `bson:"expiresAt"`
}

type roomRepo struct {
	collection *mongo.Collection
	ttl        time.Duration
	now        func() time.Time
}

// NewRoomRepo creates a MongoDB backed room store
func NewRoomRepo(db *mongo.Database, ttl time.Duration) RoomStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &roomRepo{
		collection: db.Collection("rooms"),
		ttl:        ttl,
		now:        time.Now,
	}
}

// EnsureIndexes creates the TTL index that acts as the storage expiry backstop
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("rooms").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

func (r *roomRepo) expiry() time.Time {
	return r.now().Add(r.ttl)
}

func (r *roomRepo) CreateRoom(ctx context.Context, room *model.Room) error {
	doc := roomDocument{
		Code:         room.Code,
		Room:         room,
		Participants: map[string]*model.Participant{},
		ExpiresAt:    r.expiry(),
	}
	// Same code replaces, matching a plain key-value SET
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": room.Code}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *roomRepo) load(ctx context.Context, code string) (*roomDocument, error) {
	var doc roomDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": code}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if doc.Participants == nil {
		doc.Participants = map[string]*model.Participant{}
	}
	return &doc, nil
}

func (r *roomRepo) GetRoom(ctx context.Context, code string) (*model.Room, error) {
	doc, err := r.load(ctx, code)
	if err != nil {
		return nil, err
	}
	return doc.Room, nil
}

func (r *roomRepo) Exists(ctx context.Context, code string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": code}, options.Count().SetLimit(1))
	return n > 0, err
}

func (r *roomRepo) ListParticipants(ctx context.Context, code string) ([]*model.Participant, error) {
	doc, err := r.load(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return []*model.Participant{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]*model.Participant, 0, len(doc.Participants))
	for _, p := range doc.Participants {
		out = append(out, p)
	}
	model.SortParticipants(out)
	return out, nil
}

// swap replaces the document only if nobody else wrote it since it was loaded
func (r *roomRepo) swap(ctx context.Context, doc *roomDocument) (bool, error) {
	prev := doc.Rev
	doc.Rev++
	doc.ExpiresAt = r.expiry()
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.Code, "rev": prev}, doc)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *roomRepo) UpdateRoom(ctx context.Context, code, participantID string, fn RoomMutator) (*model.Room, *model.Participant, error) {
	for attempt := 0; attempt < MaxCASRetries; attempt++ {
		doc, err := r.load(ctx, code)
		if err != nil {
			return nil, nil, err
		}
		var p *model.Participant
		if participantID != "" {
			p = doc.Participants[participantID]
		}
		if err := fn(doc.Room, p); err != nil {
			return nil, nil, err
		}
		ok, err := r.swap(ctx, doc)
		if err != nil {
			return nil, nil, fmt.Errorf("replace room %s: %w", code, err)
		}
		if ok {
			return doc.Room, p, nil
		}
	}
	return nil, nil, ErrConflict
}

func (r *roomRepo) ResetRoom(ctx context.Context, code string, fn func(room *model.Room)) (*model.Room, error) {
	for attempt := 0; attempt < MaxCASRetries; attempt++ {
		doc, err := r.load(ctx, code)
		if err != nil {
			return nil, err
		}
		fn(doc.Room)
		for _, p := range doc.Participants {
			p.PersonalCount = 0
		}
		ok, err := r.swap(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("replace room %s: %w", code, err)
		}
		if ok {
			return doc.Room, nil
		}
	}
	return nil, ErrConflict
}

func (r *roomRepo) AddParticipant(ctx context.Context, p *model.Participant, fn func(room *model.Room)) (*model.Room, error) {
	for attempt := 0; attempt < MaxCASRetries; attempt++ {
		doc, err := r.load(ctx, p.RoomCode)
		if err != nil {
			return nil, err
		}
		if fn != nil {
			fn(doc.Room)
		}
		doc.Participants[p.ID] = p
		ok, err := r.swap(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("replace room %s: %w", p.RoomCode, err)
		}
		if ok {
			return doc.Room, nil
		}
	}
	return nil, ErrConflict
}

func (r *roomRepo) RemoveParticipant(ctx context.Context, code, participantID string, fn func(room *model.Room)) (*model.Room, bool, error) {
	for attempt := 0; attempt < MaxCASRetries; attempt++ {
		doc, err := r.load(ctx, code)
		if err != nil {
			return nil, false, err
		}
		if _, ok := doc.Participants[participantID]; !ok {
			return doc.Room, false, nil
		}
		delete(doc.Participants, participantID)
		if fn != nil {
			fn(doc.Room)
		}
		ok, err := r.swap(ctx, doc)
		if err != nil {
			return nil, false, fmt.Errorf("replace room %s: %w", code, err)
		}
		if ok {
			return doc.Room, true, nil
		}
	}
	return nil, false, ErrConflict
}

func (r *roomRepo) DeleteRoom(ctx context.Context, code string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": code})
	return err
}
