package vortexstats

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/xerrors"
)

// MongoSink stores each report as a single MongoDB document.
type MongoSink struct {
	Collection  *mongo.Collection
	Separator   string
	ExpireAfter time.Duration
}

type mongoReport struct {
	Key      string             `bson:"key"`
	At       *time.Time         `bson:"at,omitempty"`
	ExpireAt *time.Time         `bson:"expire_at,omitempty"`
	Entries  []mongoReportEntry `bson:"entries"`
}

type mongoReportEntry struct {
	Category string `bson:"category"`
	Owner    string `bson:"owner"`
	Count    int64  `bson:"count"`
}

// NewMongoSink creates a MongoDB sink.
func NewMongoSink(collection *mongo.Collection) *MongoSink {
	return &MongoSink{
		Collection: collection,
		Separator:  DefaultSeparator,
	}
}

// Setup creates the unique key index and, with ExpireAfter, a TTL index.
func (d *MongoSink) Setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if d.Collection == nil {
		return xerrors.New("mongo sink requires Collection")
	}

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}
	if d.ExpireAfter > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "expire_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		})
	}

	_, err := d.Collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func (d *MongoSink) Description() string {
	return "MongoSink"
}

// Write upserts the document filed under key.
func (d *MongoSink) Write(ctx context.Context, key ReportKey, s Snapshot) error {
	if d.Collection == nil {
		return xerrors.New("mongo sink requires Collection")
	}

	doc := d.document(key, s)
	_, err := d.Collection.ReplaceOne(ctx, bson.M{"key": doc.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return xerrors.Errorf("replace report %q: %w", doc.Key, err)
	}
	return nil
}

// Read loads the document filed under key. A missing document reads as empty.
func (d *MongoSink) Read(ctx context.Context, key ReportKey) (map[Category]map[string]int64, error) {
	if d.Collection == nil {
		return nil, xerrors.New("mongo sink requires Collection")
	}

	out := emptyCounts()
	var doc mongoReport
	err := d.Collection.FindOne(ctx, bson.M{"key": key.Join(d.separator())}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return out, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("find report: %w", err)
	}

	for _, entry := range doc.Entries {
		c, ok := ParseCategory(entry.Category)
		if !ok {
			continue
		}
		out[c][entry.Owner] = entry.Count
	}
	return out, nil
}

func (d *MongoSink) document(key ReportKey, s Snapshot) mongoReport {
	doc := mongoReport{
		Key:     key.Join(d.separator()),
		At:      key.At,
		Entries: []mongoReportEntry{},
	}
	if d.ExpireAfter > 0 {
		base := s.TakenAt
		if key.At != nil {
			base = *key.At
		}
		expireAt := base.Add(d.ExpireAfter)
		doc.ExpireAt = &expireAt
	}
	for _, c := range Categories() {
		mapping := s.counts[c]
		owners := make([]string, 0, len(mapping))
		for owner := range mapping {
			owners = append(owners, owner)
		}
		sort.Strings(owners)
		for _, owner := range owners {
			doc.Entries = append(doc.Entries, mongoReportEntry{
				Category: c.String(),
				Owner:    owner,
				Count:    mapping[owner],
			})
		}
	}
	return doc
}

func (d *MongoSink) separator() string {
	if d.Separator == "" {
		return DefaultSeparator
	}
	return d.Separator
}
