package validators

import "go.mongodb.org/mongo-driver/bson"

var AliasLinkValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"alternate_email", "canonical_email", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":             bson.M{"bsonType": "objectId"},
			"alternate_email": bson.M{"bsonType": "string", "minLength": 3, "maxLength": 320},
			"canonical_email": bson.M{"bsonType": "string", "minLength": 3, "maxLength": 320},
			"linked_by":       bson.M{"bsonType": "string"},
			"created_at":      bson.M{"bsonType": "date"},
			"updated_at":      bson.M{"bsonType": "date"},
		},
	},
}
