package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"roadapp/api/internal/model"
)

// PushNotification is one localized push message addressed to a set of
// device tokens.
type PushNotification struct {
	DeviceID string   `json:"device_id"`
	Tokens   []string `json:"tokens"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	AccOn    bool     `json:"acc_on"`
}

// PushDispatcher delivers push notifications. The default
// implementation publishes to NATS for the push worker; tests
// substitute a recorder.
type PushDispatcher interface {
	Dispatch(ctx context.Context, n *PushNotification) (int, error)
}

// NatsPushDispatcher hands notifications to the push worker over NATS.
type NatsPushDispatcher struct {
	nats *nats.Conn
}

func NewNatsPushDispatcher(natsConn *nats.Conn) *NatsPushDispatcher {
	return &NatsPushDispatcher{nats: natsConn}
}

func (d *NatsPushDispatcher) Dispatch(ctx context.Context, n *PushNotification) (int, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return 0, err
	}
	if err := d.nats.Publish("road.notify.PUSH", payload); err != nil {
		return 0, err
	}
	return len(n.Tokens), nil
}

type accMessage struct {
	TitleOn  string
	BodyOn   string
	TitleOff string
	BodyOff  string
}

var accMessages = map[string]accMessage{
	"en": {
		TitleOn:  "Vehicle started",
		BodyOn:   "Ignition turned on for %s",
		TitleOff: "Vehicle stopped",
		BodyOff:  "Ignition turned off for %s",
	},
	"ar": {
		TitleOn:  "تم تشغيل المركبة",
		BodyOn:   "تم تشغيل المحرك للمركبة %s",
		TitleOff: "تم إيقاف المركبة",
		BodyOff:  "تم إيقاف المحرك للمركبة %s",
	},
}

// NotificationService fans an ACC transition out to subscribers,
// filtered by stored preference and grouped by language.
type NotificationService struct {
	db         *gorm.DB
	dispatcher PushDispatcher
}

func NewNotificationService(db *gorm.DB, dispatcher PushDispatcher) *NotificationService {
	return &NotificationService{db: db, dispatcher: dispatcher}
}

// wantsTransition applies a subscriber preference to one transition.
func wantsTransition(pref model.NotificationPreference, accOn bool) bool {
	switch pref {
	case model.NotifyBoth:
		return true
	case model.NotifyOnOnly:
		return accOn
	case model.NotifyOffOnly:
		return !accOn
	default:
		return false
	}
}

// HandleAccTransition is invoked once per genuine ACC flip. It loads
// the device's subscribers, drops those whose preference excludes this
// direction, and dispatches one localized push per language group.
// Returns the number of tokens the dispatcher accepted.
func (s *NotificationService) HandleAccTransition(ctx context.Context, deviceID string, accOn bool) int {
	var settings []model.NotificationSetting
	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Find(&settings).Error; err != nil {
		log.Printf("[NotificationService] Failed to load subscribers for %s: %v", deviceID, err)
		return 0
	}

	tokensByLang := make(map[string][]string)
	for _, setting := range settings {
		if !wantsTransition(setting.AccPref, accOn) {
			continue
		}
		var tokens []model.FCMToken
		if err := s.db.WithContext(ctx).
			Where("user_id = ? AND is_active = ?", setting.UserID, true).
			Find(&tokens).Error; err != nil {
			log.Printf("[NotificationService] Failed to load tokens for user %d: %v", setting.UserID, err)
			continue
		}
		lang := setting.Language
		if _, ok := accMessages[lang]; !ok {
			lang = "en"
		}
		for _, t := range tokens {
			tokensByLang[lang] = append(tokensByLang[lang], t.Token)
		}
	}

	delivered := 0
	for lang, tokens := range tokensByLang {
		msg := accMessages[lang]
		n := &PushNotification{
			DeviceID: deviceID,
			Tokens:   tokens,
			AccOn:    accOn,
		}
		if accOn {
			n.Title = msg.TitleOn
			n.Body = fmt.Sprintf(msg.BodyOn, deviceID)
		} else {
			n.Title = msg.TitleOff
			n.Body = fmt.Sprintf(msg.BodyOff, deviceID)
		}
		count, err := s.dispatcher.Dispatch(ctx, n)
		if err != nil {
			log.Printf("[NotificationService] Dispatch failed for %s (%s): %v", deviceID, lang, err)
			continue
		}
		delivered += count
	}
	if delivered > 0 {
		log.Printf("[NotificationService] ACC %v for %s delivered to %d tokens", accOn, deviceID, delivered)
	}
	return delivered
}
