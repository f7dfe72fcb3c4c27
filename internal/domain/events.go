package domain

// EventType names a Kick webhook event. The set is closed on our side but
// open upstream: unknown types are accepted and acknowledged.
type EventType string

const (
	EventChatMessageSent                EventType = "chat.message.sent"
	EventChannelFollowed                EventType = "channel.followed"
	EventChannelSubscriptionRenewal     EventType = "channel.subscription.renewal"
	EventChannelSubscriptionGifts       EventType = "channel.subscription.gifts"
	EventChannelSubscriptionNew         EventType = "channel.subscription.new"
	EventChannelRewardRedemptionUpdated EventType = "channel.reward.redemption.updated"
	EventLivestreamStatusUpdated        EventType = "livestream.status.updated"
	EventLivestreamMetadataUpdated      EventType = "livestream.metadata.updated"
	EventModerationBanned               EventType = "moderation.banned"
	EventKicksGifted                    EventType = "kicks.gifted"
)

// KnownEventTypes lists every event type this process understands, in the
// order Kick documents them.
var KnownEventTypes = []EventType{
	EventChatMessageSent,
	EventChannelFollowed,
	EventChannelSubscriptionRenewal,
	EventChannelSubscriptionGifts,
	EventChannelSubscriptionNew,
	EventChannelRewardRedemptionUpdated,
	EventLivestreamStatusUpdated,
	EventLivestreamMetadataUpdated,
	EventModerationBanned,
	EventKicksGifted,
}

// EventUser is the broadcaster/sender property embedded in webhook payloads.
type EventUser struct {
	IsAnonymous    bool   `json:"is_anonymous"`
	UserID         int64  `json:"user_id"`
	Username       string `json:"username"`
	IsVerified     bool   `json:"is_verified"`
	ProfilePicture string `json:"profile_picture"`
	ChannelSlug    string `json:"channel_slug"`
}

// EventEnvelopePayload is the minimal shape every payload shares: the
// broadcaster the event belongs to. Routing only needs this slice of the
// payload; handlers re-decode into their concrete event structs.
type EventEnvelopePayload struct {
	Broadcaster *EventUser `json:"broadcaster"`
}

// ChatMessageSentEvent is the payload for chat.message.sent.
type ChatMessageSentEvent struct {
	MessageID   string     `json:"message_id"`
	Broadcaster *EventUser `json:"broadcaster"`
	Sender      *EventUser `json:"sender"`
	Content     string     `json:"content"`
	CreatedAt   string     `json:"created_at"`
}

// ChannelFollowedEvent is the payload for channel.followed.
type ChannelFollowedEvent struct {
	Broadcaster *EventUser `json:"broadcaster"`
	Follower    *EventUser `json:"follower"`
}

// LivestreamStatusUpdatedEvent is the payload for livestream.status.updated.
type LivestreamStatusUpdatedEvent struct {
	Broadcaster *EventUser `json:"broadcaster"`
	IsLive      bool       `json:"is_live"`
	Title       string     `json:"title"`
	StartedAt   string     `json:"started_at"`
	EndedAt     string     `json:"ended_at"`
}
