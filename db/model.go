package db

import (
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Streamer struct {
	bun.BaseModel `bun:"table:streamers,alias:streamer"`

	Id         uuid.UUID `bun:"streamer_id,pk,type:uuid"`
	Service    string    `bun:",notnull"`
	Username   string    `bun:",notnull"`
	ProviderId string    `bun:",notnull"`
	IsOnline   bool      `bun:",notnull"`
}

type Subscriber struct {
	bun.BaseModel `bun:"table:subscribers,alias:subscriber"`

	Id     string `bun:"subscriber_id,pk"`
	Target string `bun:"notification_target,notnull"`
}

type Subscription struct {
	bun.BaseModel `bun:"table:subscriptions,alias:subscription"`

	SubscriberId string    `bun:",pk"`
	StreamerId   uuid.UUID `bun:",pk,type:uuid"`
}
