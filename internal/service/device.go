package service

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"

	"roadapp/api/internal/mdvr"
	"roadapp/api/internal/model"
)

// RegistrySource is the slice of the vendor client that pages through
// the vendor's device inventory.
type RegistrySource interface {
	DeviceList(ctx context.Context, page, pageSize int) ([]mdvr.RegistryEntry, int, error)
}

// DeviceService handles device registration and ownership.
type DeviceService struct {
	db       *gorm.DB
	vendor   VendorGateway
	registry RegistrySource
	cache    *CacheService
	notify   *NotificationService
}

func NewDeviceService(db *gorm.DB, vendor VendorGateway, registry RegistrySource, cache *CacheService, notify *NotificationService) *DeviceService {
	return &DeviceService{db: db, vendor: vendor, registry: registry, cache: cache, notify: notify}
}

// List returns a page of devices, scoped to one user unless userID is 0.
func (s *DeviceService) List(ctx context.Context, userID int, page, pageSize int) ([]model.Device, int64, error) {
	var devices []model.Device
	var total int64

	query := s.db.WithContext(ctx).Model(&model.Device{})
	if userID != 0 {
		query = query.Where("assigned_user_id = ?", userID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&devices).Error; err != nil {
		return nil, 0, err
	}
	return devices, total, nil
}

// Get returns one device by its platform device ID.
func (s *DeviceService) Get(ctx context.Context, deviceID string) (*model.Device, error) {
	var device model.Device
	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&device).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// OwnedBy reports whether the device is assigned to the user. Admins
// bypass this check at the handler level.
func (s *DeviceService) OwnedBy(ctx context.Context, deviceID string, userID int) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("device_id = ? AND assigned_user_id = ?", deviceID, userID).
		Count(&count).Error
	return count > 0, err
}

// OwnedIDs returns the device IDs assigned to the user.
func (s *DeviceService) OwnedIDs(ctx context.Context, userID int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("assigned_user_id = ?", userID).
		Pluck("device_id", &ids).Error
	return ids, err
}

// Create registers a new device.
func (s *DeviceService) Create(ctx context.Context, req *model.CreateDeviceRequest) (*model.Device, error) {
	device := &model.Device{
		DeviceID:    req.DeviceID,
		Name:        req.Name,
		OrgID:       req.OrgID,
		Brand:       req.Brand,
		Model:       req.Model,
		PlateNumber: req.PlateNumber,
		Status:      "offline",
		ConfigState: model.ConfigUnconfigured,
	}
	if err := s.db.WithContext(ctx).Create(device).Error; err != nil {
		return nil, err
	}
	return device, nil
}

// Assign binds a device to a user.
func (s *DeviceService) Assign(ctx context.Context, deviceID string, userID int) error {
	result := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("device_id = ?", deviceID).
		Update("assigned_user_id", userID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("device not found")
	}
	return nil
}

// Delete removes a device registration. The cache row is kept as
// historical last-known-truth.
func (s *DeviceService) Delete(ctx context.Context, deviceID string) error {
	result := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Delete(&model.Device{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("device not found")
	}
	return nil
}

// SyncStatuses pulls the vendor's state list for all registered
// devices and feeds it into the cache as observations.
func (s *DeviceService) SyncStatuses(ctx context.Context) error {
	var devices []model.Device
	if err := s.db.WithContext(ctx).Find(&devices).Error; err != nil {
		return err
	}
	if len(devices) == 0 {
		return nil
	}

	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.DeviceID)
	}

	states, err := s.vendor.DeviceStates(ctx, ids)
	if err != nil {
		return err
	}

	for i := range states {
		st := &states[i]
		online := st.Online
		accOn := st.AccOn
		obs := &Observation{
			DeviceID:     st.DeviceID,
			Online:       &online,
			AccOn:        &accOn,
			LastOnlineMs: st.LastOnlineMs,
		}
		transition, err := s.cache.Upsert(ctx, obs)
		if err != nil {
			log.Printf("[DeviceService] Failed to cache state for %s: %v", st.DeviceID, err)
			continue
		}
		if transition.Fired && s.notify != nil {
			s.notify.HandleAccTransition(ctx, st.DeviceID, transition.AccOn)
		}
	}
	log.Printf("[DeviceService] Synced %d device states", len(states))
	return nil
}

// Pages of this size keep registry sync to a handful of vendor calls
// for fleets in the low thousands.
const registryPageSize = 100

// SyncRegistry pulls the vendor's full device inventory and reconciles
// the local registry against it: unknown devices are created
// unassigned, known ones get their name, org and status refreshed.
// Local-only devices are kept; the vendor list is not authoritative
// for deletion.
func (s *DeviceService) SyncRegistry(ctx context.Context) (*model.DeviceSyncResult, error) {
	var entries []mdvr.RegistryEntry
	total := 0
	// The page cap bounds the damage if the vendor reports a total it
	// never delivers.
	for page := 1; page <= 100; page++ {
		pageEntries, pageTotal, err := s.registry.DeviceList(ctx, page, registryPageSize)
		if err != nil {
			return nil, err
		}
		entries = append(entries, pageEntries...)
		total = pageTotal
		if len(pageEntries) == 0 || len(entries) >= pageTotal {
			break
		}
	}

	var existing []model.Device
	if err := s.db.WithContext(ctx).Find(&existing).Error; err != nil {
		return nil, err
	}
	known := make(map[string]*model.Device, len(existing))
	for i := range existing {
		known[existing[i].DeviceID] = &existing[i]
	}

	result := &model.DeviceSyncResult{VendorTotal: total}
	for _, entry := range entries {
		device, ok := known[entry.DeviceID]
		if !ok {
			created := model.Device{
				DeviceID:    entry.DeviceID,
				Name:        entry.Name,
				OrgID:       entry.OrgID,
				Status:      entry.Status,
				ConfigState: model.ConfigUnconfigured,
			}
			if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
				log.Printf("[DeviceService] Failed to register %s from vendor inventory: %v", entry.DeviceID, err)
				continue
			}
			result.Created++
			result.CreatedIDs = append(result.CreatedIDs, entry.DeviceID)
			continue
		}
		if device.Name == entry.Name && device.OrgID == entry.OrgID && device.Status == entry.Status {
			continue
		}
		err := s.db.WithContext(ctx).Model(&model.Device{}).
			Where("device_id = ?", entry.DeviceID).
			Updates(map[string]interface{}{
				"name":   entry.Name,
				"org_id": entry.OrgID,
				"status": entry.Status,
			}).Error
		if err != nil {
			log.Printf("[DeviceService] Failed to refresh %s from vendor inventory: %v", entry.DeviceID, err)
			continue
		}
		result.Updated++
	}
	log.Printf("[DeviceService] Registry sync: %d vendor devices, %d created, %d updated",
		result.VendorTotal, result.Created, result.Updated)
	return result, nil
}

// Unassigned lists registered devices with no owning user.
func (s *DeviceService) Unassigned(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	err := s.db.WithContext(ctx).
		Where("assigned_user_id IS NULL").
		Order("device_id").
		Find(&devices).Error
	return devices, err
}

// RegistrySummary counts the local registry by assignment.
func (s *DeviceService) RegistrySummary(ctx context.Context) (*model.RegistrySummary, error) {
	var summary model.RegistrySummary
	if err := s.db.WithContext(ctx).Model(&model.Device{}).Count(&summary.Total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Device{}).
		Where("assigned_user_id IS NOT NULL").Count(&summary.Assigned).Error; err != nil {
		return nil, err
	}
	summary.Unassigned = summary.Total - summary.Assigned
	return &summary, nil
}
