package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleTransitNode  Role = "transit_node"
	RoleReceiver     Role = "receiver"
	RoleAdmin        Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleManufacturer, RoleTransitNode, RoleReceiver, RoleAdmin:
		return true
	}
	return false
}

// User struct matches the document in MongoDB
type User struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID             string             `bson:"userId" json:"user_id"`
	Email              string             `bson:"email" json:"email"`
	Username           string             `bson:"username" json:"username"`
	Password           string             `bson:"password" json:"-"`
	Role               Role               `bson:"role" json:"role"`
	NodeCodes          []string           `bson:"nodeCodes,omitempty" json:"node_codes"`
	Status             string             `bson:"status" json:"status"`
	FabricEnrollmentID string             `bson:"fabricEnrollmentID,omitempty" json:"fabric_enrollment_id,omitempty"`
	CreatedAt          time.Time          `bson:"createdAt" json:"created_at"`
}
