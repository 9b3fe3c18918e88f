package validators

import "go.mongodb.org/mongo-driver/bson"

var ExternalRecordValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"source",
			"external_id",
			"resource_id",
			"date",
			"start_time",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"source": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 50,
			},

			"external_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"occupant_name": bson.M{
				"bsonType":  "string",
				"maxLength": 200,
			},

			"raw_email": bson.M{
				"bsonType":  "string",
				"maxLength": 320,
			},

			"email_key": bson.M{
				"bsonType":  "string",
				"maxLength": 320,
			},

			"resource_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 100,
			},

			"date": bson.M{
				"bsonType": "date",
			},

			"start_time": bson.M{
				"bsonType": "string",
				"pattern":  "^([01][0-9]|2[0-3]):[0-5][0-9]$",
			},

			"end_time": bson.M{
				"bsonType": "string",
			},

			"declared_count": bson.M{
				"bsonType": "int",
				"minimum":  0,
				"maximum":  20,
			},

			"status": bson.M{
				"enum": []string{"unresolved", "resolved", "superseded"},
			},

			"resolved_email": bson.M{
				"bsonType": "string",
			},

			"failure_reason": bson.M{
				"bsonType": "string",
			},

			"resolution_outcome": bson.M{
				"enum": []string{"matched", "linked"},
			},

			"booking_id": bson.M{
				"bsonType": "string",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},

			"updated_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
