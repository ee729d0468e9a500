package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"user_id",
			"room_id",
			"check_in",
			"check_out",
			"guests",
			"status",
			"payment_method",
			"payment_status",
			"total_price",
			"created_at",
			"updated_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
			},

			"user_id": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},

			"room_id": bson.M{
				"bsonType": "long",
				"minimum":  1,
			},

			"check_in": bson.M{
				"bsonType": "date",
			},

			"check_out": bson.M{
				"bsonType": "date",
			},

			"guests": bson.M{
				"bsonType": []string{"int", "long"},
				"minimum":  1,
				"maximum":  20,
			},

			"special_requests": bson.M{
				"bsonType":  "string",
				"maxLength": 1000,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"confirmed",
					"cancelled",
					"completed",
				},
			},

			"payment_method": bson.M{
				"bsonType": "string",
				"enum":     []string{"cash", "card", "transfer"},
			},

			"payment_status": bson.M{
				"bsonType": "string",
			},

			"total_price": bson.M{
				"bsonType": "double",
				"minimum":  0,
			},

			"auto_confirm": bson.M{
				"bsonType": "bool",
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

// RoomGuardValidator covers the per-room version documents that serialize
// booking transactions on one room.
var RoomGuardValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{"_id", "version"},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "long",
			},
			"version": bson.M{
				"bsonType": []string{"int", "long"},
			},
		},
	},
}
