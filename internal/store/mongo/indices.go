package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type bsonM = bson.M

// keys builds a bson.D from alternating field/order pairs, e.g.
// keys("a", 1, "b", -1).
func keys(kv ...interface{}) bson.D {
	d := bson.D{}
	for i := 0; i+1 < len(kv); i += 2 {
		d = append(d, bson.E{Key: kv[i].(string), Value: kv[i+1]})
	}
	return d
}

func unique(k bson.D) mongo.IndexModel {
	return mongo.IndexModel{Keys: k, Options: options.Index().SetUnique(true)}
}

func uniqueSparse(field string) mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	}
}

func plain(k bson.D) mongo.IndexModel {
	return mongo.IndexModel{Keys: k}
}

func ttl(field string, after time.Duration) mongo.IndexModel {
	seconds := int32(after / time.Second)
	return mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(seconds),
	}
}
