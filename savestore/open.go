// Package savestore selects a forge.SaveStore backend from a target string.
package savestore

import (
	"context"
	"fmt"
	"strings"

	"visforge/forge"
	"visforge/savestore/fs"
	"visforge/savestore/s3"
	"visforge/savestore/sqlite"
)

// Store is a forge.SaveStore that can also enumerate and remove slots.
type Store interface {
	forge.SaveStore
	Delete(ctx context.Context, slot string) (bool, error)
	Slots(ctx context.Context) ([]string, error)
}

type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverSQLite     Driver = "sqlite"
	DriverS3         Driver = "s3"
)

// Open selects a Store from a target of the form driver:location.
//
//	fs:./saves           directory of JSON files (the default driver)
//	sqlite:./visforge.db SQLite database
//	s3:bucket/prefix/    S3 bucket; the remaining settings come from the
//	                     VISFORGE_S3_* environment variables
//
// A target without a driver is a filesystem directory.
func Open(ctx context.Context, target, primary string) (Store, error) {
	driver, location, found := strings.Cut(target, ":")
	if !found {
		driver, location = string(DriverFilesystem), target
	}

	switch Driver(driver) {
	case DriverFilesystem:
		return fs.New(location, primary)
	case DriverSQLite:
		return sqlite.NewStore(location, primary)
	case DriverS3:
		cfg := s3.ConfigFromEnv()
		if location != "" {
			bucket, prefix, _ := strings.Cut(location, "/")
			cfg.Bucket, cfg.Prefix = bucket, prefix
		}
		cfg.Primary = primary
		return s3.New(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown save store driver %s", driver)
	}
}
