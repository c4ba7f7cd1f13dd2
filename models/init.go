package models

import "gorm.io/gorm"

// System tags created for every installation. These encode the contact
// lifecycle status and cannot be deleted by users.
func CreateSystemTags(db *gorm.DB) error {
	systemTags := []Tag{
		{
			Name:        "Lead",
			Slug:        SlugLead,
			Color:       "#3B82F6",
			Description: "Contato inicial - ainda não é apoiador",
			IsSystem:    true,
			IsActive:    true,
		},
		{
			Name:        "Apoiador",
			Slug:        SlugApoiador,
			Color:       "#22C55E",
			Description: "Contato engajado - apoiador confirmado",
			IsSystem:    true,
			IsActive:    true,
		},
		{
			Name:        "Blacklist",
			Slug:        SlugBlacklist,
			Color:       "#EF4444",
			Description: "Não contatar - excluído de campanhas",
			IsSystem:    true,
			IsActive:    true,
		},
	}
	for _, tag := range systemTags {
		if err := db.FirstOrCreate(&tag, "slug = ? AND is_system = ?", tag.Slug, true).Error; err != nil {
			return err
		}
	}
	return nil
}
