package service

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const localtimePath = "/etc/localtime"

// LocalZone resolves the device zone from $TZ and /etc/localtime on every
// call. time.Local is read once per process and misses later changes.
func LocalZone() *time.Location {
	if tz, ok := os.LookupEnv("TZ"); ok {
		tz = strings.TrimPrefix(tz, ":")
		if tz == "" || tz == "UTC" {
			return time.UTC
		}
		if filepath.IsAbs(tz) {
			if loc, err := zoneFromFile(tz); err == nil {
				return loc
			}
		} else if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
		return time.Local
	}
	if loc, err := zoneFromFile(localtimePath); err == nil {
		return loc
	}
	return time.Local
}

// zoneFromFile prefers the IANA name behind a zoneinfo symlink so the
// location prints as e.g. Asia/Tokyo instead of Local.
func zoneFromFile(path string) (*time.Location, error) {
	if target, err := filepath.EvalSymlinks(path); err == nil {
		if i := strings.LastIndex(target, "zoneinfo/"); i >= 0 {
			if loc, err := time.LoadLocation(target[i+len("zoneinfo/"):]); err == nil {
				return loc, nil
			}
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return time.LoadLocationFromTZData("Local", data)
}
