package validators

import "go.mongodb.org/mongo-driver/bson"

var OccupantAssignmentValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"booking_id", "occupant_key", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":          bson.M{"bsonType": "objectId"},
			"booking_id":   bson.M{"bsonType": "string", "minLength": 1},
			"occupant_key": bson.M{"bsonType": "string", "minLength": 1},
			"member_email": bson.M{"bsonType": "string"},
			"guest_name":   bson.M{"bsonType": "string", "maxLength": 200},
			"guest_phone":  bson.M{"bsonType": "string", "maxLength": 20},
			"added_by":     bson.M{"bsonType": "string"},
			"created_at":   bson.M{"bsonType": "date"},
		},
	},
}
