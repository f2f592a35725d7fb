package sources

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/services"
)

// AssetLookup resolves asset metadata from the platform asset table.
type AssetLookup struct {
	db *gorm.DB
}

func NewAssetLookup(db *gorm.DB) *AssetLookup {
	return &AssetLookup{db: db}
}

func (l *AssetLookup) GetAsset(tenantID, assetID uint) (*services.AssetInfo, error) {
	var asset database.Asset
	err := l.db.Where("tenant_id = ? AND id = ?", tenantID, assetID).First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up asset %d: %w", assetID, err)
	}
	return &services.AssetInfo{
		ID:          asset.ID,
		Name:        asset.Name,
		NameAr:      asset.NameAr,
		AssetType:   asset.AssetType,
		Criticality: asset.Criticality,
		SiteID:      asset.SiteID,
	}, nil
}

// ListAssetIDsByType matches by substring, so asking for "pump" also returns
// assets typed "centrifugal pump".
func (l *AssetLookup) ListAssetIDsByType(tenantID uint, assetType string) ([]uint, error) {
	var ids []uint
	err := l.db.Model(&database.Asset{}).
		Where("tenant_id = ? AND lower(asset_type) LIKE ?", tenantID, "%"+assetType+"%").
		Order("id asc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("listing assets of type %s: %w", assetType, err)
	}
	return ids, nil
}

// CostModelLookup resolves hourly downtime rates from the cost model table
// with asset over site over tenant precedence.
type CostModelLookup struct {
	db *gorm.DB
}

func NewCostModelLookup(db *gorm.DB) *CostModelLookup {
	return &CostModelLookup{db: db}
}

func (l *CostModelLookup) LookupRate(tenantID uint, assetID, siteID *uint) (services.CostRate, error) {
	if assetID != nil {
		if rate, ok, err := l.findRate("asset_id = ?", tenantID, *assetID); err != nil || ok {
			return rate, err
		}
	}
	if siteID != nil {
		if rate, ok, err := l.findRate("site_id = ? AND asset_id IS NULL", tenantID, *siteID); err != nil || ok {
			return rate, err
		}
	}

	var model database.CostModel
	err := l.db.Where("tenant_id = ? AND asset_id IS NULL AND site_id IS NULL AND is_active = ?", tenantID, true).
		Order("updated_at desc").
		First(&model).Error
	if err == nil {
		return services.CostRate{CostPerHour: model.CostPerHourDowntime, Currency: model.Currency}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return services.CostRate{}, fmt.Errorf("looking up tenant cost model: %w", err)
	}

	return services.CostRate{CostPerHour: services.DefaultCostPerHour, Currency: services.DefaultCurrency}, nil
}

func (l *CostModelLookup) findRate(cond string, tenantID uint, id uint) (services.CostRate, bool, error) {
	var model database.CostModel
	err := l.db.Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Where(cond, id).
		Order("updated_at desc").
		First(&model).Error
	if err == nil {
		return services.CostRate{CostPerHour: model.CostPerHourDowntime, Currency: model.Currency}, true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return services.CostRate{}, false, nil
	}
	return services.CostRate{}, false, fmt.Errorf("looking up cost model: %w", err)
}

// UserLookup resolves work order assignees from the platform user table.
type UserLookup struct {
	db *gorm.DB
}

func NewUserLookup(db *gorm.DB) *UserLookup {
	return &UserLookup{db: db}
}

func (l *UserLookup) FindEngineer(tenantID uint) (*services.UserRef, error) {
	return l.findByRoles(tenantID, database.RoleEngineer, database.RoleOptimizationEngineer)
}

func (l *UserLookup) FindAdmin(tenantID uint) (*services.UserRef, error) {
	return l.findByRoles(tenantID, database.RoleTenantAdmin)
}

func (l *UserLookup) findByRoles(tenantID uint, roles ...string) (*services.UserRef, error) {
	var user database.User
	err := l.db.Where("tenant_id = ? AND is_active = ? AND role IN ?", tenantID, true, roles).
		Order("id asc").
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user by role: %w", err)
	}
	return &services.UserRef{ID: user.ID, Name: user.Name}, nil
}
