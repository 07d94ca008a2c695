// scan_cache.go: persisted driver scan catalogue and validity stamp
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modelbox

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/agilira/go-timecache"
)

// ScanResultInfo accumulates the outcome of one directory walk: the
// ordered list of libraries whose descriptions loaded, and the failure
// reason for every library that did not.
type ScanResultInfo struct {
	loadSuccess []string
	loadFailed  map[string]string
}

// NewScanResultInfo creates an empty result set.
func NewScanResultInfo() *ScanResultInfo {
	return &ScanResultInfo{loadFailed: make(map[string]string)}
}

// AddSuccess records a library whose description loaded.
func (s *ScanResultInfo) AddSuccess(path string) {
	s.loadSuccess = append(s.loadSuccess, path)
}

// AddFailure records a library that failed with the given reason.
func (s *ScanResultInfo) AddFailure(path, errMsg string) {
	s.loadFailed[path] = errMsg
}

// SuccessPaths returns the loaded library paths in scan order.
func (s *ScanResultInfo) SuccessPaths() []string {
	out := make([]string, len(s.loadSuccess))
	copy(out, s.loadSuccess)
	return out
}

// Failures returns the failed library paths and their reasons.
func (s *ScanResultInfo) Failures() map[string]string {
	out := make(map[string]string, len(s.loadFailed))
	for path, msg := range s.loadFailed {
		out[path] = msg
	}
	return out
}

// scanDriverRecord is a successfully described driver in the cache.
type scanDriverRecord struct {
	Class       string `json:"class"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	FilePath    string `json:"file_path"`
	NoDelete    bool   `json:"no_delete"`
	Global      bool   `json:"global"`
	DeepBind    bool   `json:"deep_bind"`
	LoadSuccess bool   `json:"load_success"`
}

// scanFailureRecord is a failed library in the cache.
type scanFailureRecord struct {
	FilePath    string `json:"file_path"`
	ErrMsg      string `json:"err_msg"`
	LoadSuccess bool   `json:"load_success"`
}

// scanInfoDoc is the cache document as written.
type scanInfoDoc struct {
	LdCacheTime   int64  `json:"ld_cache_time"`
	CheckCode     string `json:"check_code"`
	VersionRecord string `json:"version_record"`
	ScanDrivers   []any  `json:"scan_drivers"`
}

// scanInfoEntry is the union shape used when reading entries back.
type scanInfoEntry struct {
	Class       string `json:"class"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
	FilePath    string `json:"file_path"`
	NoDelete    bool   `json:"no_delete"`
	Global      bool   `json:"global"`
	DeepBind    bool   `json:"deep_bind"`
	ErrMsg      string `json:"err_msg"`
	LoadSuccess bool   `json:"load_success"`
}

// scanInfoFile is the cache document as read.
type scanInfoFile struct {
	LdCacheTime   int64           `json:"ld_cache_time"`
	CheckCode     string          `json:"check_code"`
	VersionRecord string          `json:"version_record"`
	ScanDrivers   []scanInfoEntry `json:"scan_drivers"`
}

// GenerateKey derives the scan check code from the sum of the scanned
// file mtimes. Equal codes imply an unchanged file set.
func GenerateKey(modifyTimeSum int64) string {
	digest := sha256.Sum256([]byte(strconv.FormatInt(modifyTimeSum, 10)))
	return hex.EncodeToString(digest[:])
}

// fileMtime returns the mtime of path in seconds.
func fileMtime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.ModTime().Unix(), nil
}

// listDriverFiles enumerates entries matching filter at depth one under
// dir, in deterministic order.
func listDriverFiles(dir, filter string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filter))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// writeScanInfo persists the current catalogue and failure set along
// with the validity stamp derived from the walk.
func (r *DriverRegistry) writeScanInfo(path, checkCode string) error {
	doc := scanInfoDoc{
		CheckCode:     checkCode,
		VersionRecord: timecache.CachedTime().Format(time.ANSIC),
	}

	if mtime, err := fileMtime(r.ldCachePath); err == nil {
		doc.LdCacheTime = mtime
	}

	for _, driver := range r.drivers {
		desc := driver.GetDriverDesc()
		doc.ScanDrivers = append(doc.ScanDrivers, scanDriverRecord{
			Class:       desc.Class(),
			Type:        desc.Type(),
			Name:        desc.Name(),
			Description: desc.Description(),
			Version:     desc.Version(),
			FilePath:    desc.FilePath(),
			NoDelete:    desc.NoDelete(),
			Global:      desc.Global(),
			DeepBind:    desc.DeepBind(),
			LoadSuccess: true,
		})
	}

	for failedPath, errMsg := range r.scanResult.Failures() {
		doc.ScanDrivers = append(doc.ScanDrivers, scanFailureRecord{
			FilePath:    failedPath,
			ErrMsg:      errMsg,
			LoadSuccess: false,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return NewCacheWriteError(path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return NewCacheWriteError(path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return NewCacheWriteError(path, err)
	}

	r.logger.Debug("scan info written", "path", path, "entries", len(doc.ScanDrivers))
	return nil
}

// readScanInfo loads and decodes the cache document.
func readScanInfo(path string) (*scanInfoFile, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, NewCacheReadError(path, err)
	}

	var doc scanInfoFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, NewCacheReadError(path, err)
	}
	return &doc, nil
}

// gatherScanInfo rebuilds the in-memory catalogue from the cache,
// skipping failed entries and entries whose identity is already
// registered.
func (r *DriverRegistry) gatherScanInfo(path string) error {
	doc, err := readScanInfo(path)
	if err != nil {
		r.logger.Error("gather scan info failed", "path", path, "error", err)
		return err
	}

	for _, entry := range doc.ScanDrivers {
		if !entry.LoadSuccess {
			continue
		}

		driver := newDriver(r.loader, r.handles, r.logger)
		desc := driver.GetDriverDesc()
		desc.SetClass(entry.Class)
		desc.SetType(entry.Type)
		desc.SetName(entry.Name)
		desc.SetDescription(entry.Description)
		if err := desc.SetVersion(entry.Version); err != nil {
			r.logger.Warn("scan info entry carries invalid version",
				"file", entry.FilePath, "version", entry.Version)
		}
		desc.SetFilePath(entry.FilePath)
		desc.SetNoDelete(entry.NoDelete)
		desc.SetGlobal(entry.Global)
		desc.SetDeepBind(entry.DeepBind)

		if !r.containsDriver(driver) {
			r.drivers = append(r.drivers, driver)
		}
	}

	r.logger.Info("Gather scan info success", "drivers", len(r.drivers))
	return nil
}

// fillCheckInfo extracts the cached check code, linker-cache mtime and
// file set used by the validity predicate.
func (r *DriverRegistry) fillCheckInfo() (checkCode string, fileSet map[string]bool, ldCacheTime int64, err error) {
	doc, err := readScanInfo(r.scanInfoPath)
	if err != nil {
		return "", nil, 0, err
	}

	fileSet = make(map[string]bool, len(doc.ScanDrivers))
	for _, entry := range doc.ScanDrivers {
		fileSet[entry.FilePath] = true
	}
	return doc.CheckCode, fileSet, doc.LdCacheTime, nil
}

// checkPathAndMagicCode decides whether the persisted scan cache still
// describes the filesystem: the cache and linker cache must exist, the
// linker-cache mtime must match, no matching file may be new or
// missing, and the check code derived from the current mtime sum must
// equal the cached one.
func (r *DriverRegistry) checkPathAndMagicCode() bool {
	if _, err := os.Stat(r.scanInfoPath); err != nil {
		r.logger.Debug("scan info does not exist", "path", r.scanInfoPath)
		return false
	}

	ldCacheMtime, err := fileMtime(r.ldCachePath)
	if err != nil {
		r.logger.Debug("ld cache does not exist", "path", r.ldCachePath)
		return false
	}

	checkCode, fileSet, cachedLdTime, err := r.fillCheckInfo()
	if err != nil {
		return false
	}

	if cachedLdTime != ldCacheMtime {
		return false
	}

	var checkSum int64
	for _, dir := range r.driverDirs {
		info, err := os.Lstat(dir)
		if err != nil {
			r.logger.Error("lstat failed", "path", dir, "error", err)
			return false
		}

		if !info.IsDir() {
			checkSum += info.ModTime().Unix()
			continue
		}

		files, err := listDriverFiles(dir, DriverFileFilter)
		if err != nil {
			r.logger.Error("list directory failed", "dir", dir, "filter", DriverFileFilter, "error", err)
			return false
		}

		for _, file := range files {
			stat, err := os.Lstat(file)
			if err != nil {
				r.logger.Debug("lstat failed", "path", file, "error", err)
				continue
			}

			if stat.Mode()&os.ModeSymlink != 0 {
				continue
			}

			if !fileSet[file] {
				return false
			}

			checkSum += stat.ModTime().Unix()
		}
	}

	return checkCode == GenerateKey(checkSum)
}

// printScanResults reads the cache back and logs the scan summary.
func (r *DriverRegistry) printScanResults(path string) {
	doc, err := readScanInfo(path)
	if err != nil {
		r.logger.Error("open scan info for read failed", "path", path, "error", err)
		return
	}

	var loadSuccess []string
	loadFailed := make(map[string]string)
	for _, entry := range doc.ScanDrivers {
		if entry.LoadSuccess {
			loadSuccess = append(loadSuccess, entry.FilePath)
			continue
		}
		loadFailed[entry.FilePath] = entry.ErrMsg
	}

	r.printScanResult(loadSuccess, loadFailed)
}

func (r *DriverRegistry) printScanResult(loadSuccess []string, loadFailed map[string]string) {
	if len(loadSuccess) == 0 {
		r.logger.Warn("no driver load success, please check")
	} else {
		r.logger.Info("load success drivers", "count", len(loadSuccess))
		for _, path := range loadSuccess {
			r.logger.Debug("load success", "file", path)
		}
	}

	if len(loadFailed) == 0 {
		r.logger.Info("no drivers load failed")
		return
	}

	r.logger.Warn("load failed drivers", "count", len(loadFailed))
	for path, errMsg := range loadFailed {
		r.logger.Warn("load failed", "file", path, "error", errMsg)
	}
}
