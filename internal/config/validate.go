package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLabeling(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLabeling() error {
	if c.Labeling.MaxAnnotationTimeSeconds <= 0 {
		return errors.New("labeling.max_annotation_time_seconds must be positive")
	}
	if c.Labeling.MaxReworkTimeSeconds <= 0 {
		return errors.New("labeling.max_rework_time_seconds must be positive")
	}
	if c.Labeling.PageSize <= 0 {
		return errors.New("labeling.page_size must be positive")
	}
	switch c.Labeling.AllocationPolicy {
	case PolicyItemClaim, PolicyCategoryQueue:
	default:
		return fmt.Errorf("labeling.allocation_policy must be %q or %q", PolicyItemClaim, PolicyCategoryQueue)
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}
