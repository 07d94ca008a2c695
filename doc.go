// doc.go: package overview
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package modelbox implements the driver registry and loader core of a
// dataflow inference runtime.
//
// The registry discovers driver libraries on disk (libmodelbox-*.so*),
// harvests and dedupes each library's exported description, persists
// the result in a scan cache validated against filesystem and linker
// cache mtimes, and lends live factories with reference-counted
// teardown. Drivers of the reserved "virtual" class act as
// sub-registries and contribute further drivers during the scan.
//
// Typical host usage:
//
//	if modelbox.ScanChildRequested() {
//		os.Exit(modelbox.RunScanChild())
//	}
//
//	config, err := modelbox.LoadConfiguration("/etc/modelbox/driver.yaml")
//	if err != nil {
//		return err
//	}
//
//	registry := modelbox.GetInstance()
//	if err := registry.Initialize(config); err != nil {
//		return err
//	}
//	if err := registry.Scan(); err != nil {
//		return err
//	}
//
//	driver := registry.GetDriver("cpu", "inference", "resnet", "")
//	factory, err := driver.CreateFactory()
//	if err != nil {
//		return err
//	}
//	defer factory.Release()
package modelbox
