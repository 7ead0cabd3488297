// Package events carries change notifications between writers and live listeners.
//
// Delivery is at-least-once and coalescing: a subscriber that is slow to drain
// its channel may see several changes folded into one notification. Listeners
// are expected to re-read the current state on every notification, which is
// what Feed does.
package events

import (
	"context"
	"time"
)

// Topic names a filtered stream of changes.
type Topic string

// SessionsOfTutor is the topic for every session change involving tutorID.
func SessionsOfTutor(tutorID string) Topic {
	return Topic("sessions:tutor:" + tutorID)
}

// SessionsOfStudent is the topic for every session change involving studentID.
func SessionsOfStudent(studentID string) Topic {
	return Topic("sessions:student:" + studentID)
}

// Chat is the topic for a pair conversation.
func Chat(pairKey string) Topic {
	return Topic("chat:" + pairKey)
}

// User is the topic for profile and sign-in state changes of userID.
func User(userID string) Topic {
	return Topic("users:" + userID)
}

type Kind string

const (
	KindCreated  Kind = "created"
	KindUpdated  Kind = "updated"
	KindDeleted  Kind = "deleted"
	KindSignedIn Kind = "signed_in"
	KindSignOut  Kind = "signed_out"
)

type Event struct {
	Topic      Topic     `json:"topic"`
	Kind       Kind      `json:"kind"`
	DocumentID string    `json:"document_id"`
	At         time.Time `json:"at"`
}

// Subscription is an open listener. Close must be called by the owner.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type Broker interface {
	Publisher
	Subscribe(ctx context.Context, topics ...Topic) (Subscription, error)
}

// Notify builds one event of kind per topic for documentID.
func Notify(kind Kind, documentID string, topics ...Topic) []Event {
	now := time.Now()
	out := make([]Event, 0, len(topics))
	for _, topic := range topics {
		out = append(out, Event{Topic: topic, Kind: kind, DocumentID: documentID, At: now})
	}
	return out
}

// offer delivers ev without blocking. A full buffer already holds a pending
// notification, so dropping ev loses nothing a re-reading listener needs.
func offer(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
	}
}
