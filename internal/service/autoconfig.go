package service

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"roadapp/api/internal/config"
	"roadapp/api/internal/model"
)

// CommandDispatcher sends a configuration command to a device and
// reports whether the vendor accepted it.
type CommandDispatcher interface {
	SendCommand(ctx context.Context, deviceID string, payload map[string]any) (bool, error)
}

// AutoConfigService drives the per-device configuration state machine:
// UNCONFIGURED devices become PENDING on a genuine offline-to-online
// edge, wait out an initial delay so the device finishes booting, then
// get a configuration command. Success is terminal; failure retries on
// a fixed delay with the attempt count persisted across restarts.
type AutoConfigService struct {
	db         *gorm.DB
	cache      *CacheService
	dispatcher CommandDispatcher

	checkInterval time.Duration
	initialDelay  time.Duration
	retryDelay    time.Duration

	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

func NewAutoConfigService(db *gorm.DB, cache *CacheService, dispatcher CommandDispatcher, cfg *config.Config) *AutoConfigService {
	ctx, cancel := context.WithCancel(context.Background())
	return &AutoConfigService{
		db:            db,
		cache:         cache,
		dispatcher:    dispatcher,
		checkInterval: cfg.AutoConfigCheckInterval,
		initialDelay:  cfg.AutoConfigInitialDelay,
		retryDelay:    cfg.AutoConfigRetryDelay,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start runs the polling loop until Stop.
func (s *AutoConfigService) Start() {
	log.Printf("[AutoConfigService] Starting, poll interval %s", s.checkInterval)
	go func() {
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.CheckOnce(s.ctx)
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the polling loop.
func (s *AutoConfigService) Stop() {
	s.cancel()
	log.Println("[AutoConfigService] Stopped")
}

// CheckOnce runs one scheduler pass over all unconfigured devices.
func (s *AutoConfigService) CheckOnce(ctx context.Context) {
	var devices []model.Device
	if err := s.db.WithContext(ctx).
		Where("config_state <> ?", model.ConfigDone).
		Find(&devices).Error; err != nil {
		log.Printf("[AutoConfigService] Failed to load devices: %v", err)
		return
	}

	for i := range devices {
		if err := s.checkDevice(ctx, &devices[i]); err != nil {
			log.Printf("[AutoConfigService] Device %s: %v", devices[i].DeviceID, err)
		}
	}
}

func (s *AutoConfigService) checkDevice(ctx context.Context, device *model.Device) error {
	row, err := s.cache.Get(ctx, device.DeviceID)
	if err != nil {
		return err
	}
	// The coarser scheduler window decides liveness here: a doubtful
	// device is skipped rather than commanded while possibly offline.
	online := s.cache.TrustedOnline(row)

	switch device.ConfigState {
	case model.ConfigUnconfigured:
		if !online {
			if device.Status != "offline" {
				device.Status = "offline"
				return s.db.WithContext(ctx).Save(device).Error
			}
			return nil
		}
		if device.Status == "online" {
			// Already counted this online period; not a new edge.
			return nil
		}
		now := s.now()
		device.Status = "online"
		device.ConfigState = model.ConfigPending
		device.LastOnlineAt = &now
		log.Printf("[AutoConfigService] Device %s came online, configuration pending", device.DeviceID)
		return s.db.WithContext(ctx).Save(device).Error

	case model.ConfigPending:
		if !online {
			// Stays pending; the boot-delay anchor is not reset.
			if device.Status != "offline" {
				device.Status = "offline"
				return s.db.WithContext(ctx).Save(device).Error
			}
			return nil
		}
		if device.Status != "online" {
			device.Status = "online"
			if err := s.db.WithContext(ctx).Save(device).Error; err != nil {
				return err
			}
		}
		if !s.attemptDue(device) {
			return nil
		}
		return s.attemptConfigure(ctx, device)
	}
	return nil
}

// attemptDue applies the initial boot delay, then the retry delay
// between failed attempts.
func (s *AutoConfigService) attemptDue(device *model.Device) bool {
	now := s.now()
	if device.LastOnlineAt == nil || now.Sub(*device.LastOnlineAt) < s.initialDelay {
		return false
	}
	if device.ConfigAttempts > 0 && device.ConfigLastAttempt != nil &&
		now.Sub(*device.ConfigLastAttempt) < s.retryDelay {
		return false
	}
	return true
}

func (s *AutoConfigService) attemptConfigure(ctx context.Context, device *model.Device) error {
	now := s.now()
	device.ConfigAttempts++
	device.ConfigLastAttempt = &now

	ok, err := s.dispatcher.SendCommand(ctx, device.DeviceID, configCommandPayload())
	if err != nil {
		log.Printf("[AutoConfigService] Configuration attempt %d for %s failed: %v", device.ConfigAttempts, device.DeviceID, err)
		ok = false
	}
	if ok {
		device.ConfigState = model.ConfigDone
		log.Printf("[AutoConfigService] Device %s configured after %d attempt(s)", device.DeviceID, device.ConfigAttempts)
	}
	return s.db.WithContext(ctx).Save(device).Error
}

// configCommandPayload is the platform-settings command pushed to a
// freshly provisioned device.
func configCommandPayload() map[string]any {
	return map[string]any{
		"cmdType":        "SET_PARAMS",
		"uploadInterval": 30,
		"heartbeat":      60,
	}
}
