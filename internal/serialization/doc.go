// Package serialization implements the .born checkpoint format used to
// persist trained spectral networks.
//
//	Format Structure:
//	  [0x00-0x03: Magic "SPCN"]
//	  [0x04-0x07: Version (uint32 LE)]
//	  [0x08-0x0B: Flags (uint32 LE)]
//	  [0x0C-0x0F: Reserved]
//	  [0x10-0x17: Header Size (uint64 LE)]
//	  [0x18-0x1F: Data Size (uint64 LE)]
//	  [0x20-0x3F: SHA-256 of the data section]
//	  [Header: JSON metadata]
//	  [Tensor data: float64 LE, 64-byte aligned]
//
// The JSON header names every tensor with its shape, offset and size, and
// carries the planned architecture so that a network can be rebuilt before
// its weights are loaded.
//
// Example usage:
//
//	// Save
//	header := serialization.Header{ModelType: "classifier", Architecture: plan}
//	if err := serialization.WriteFile("model_classifier_CNN.born", net.StateDict(), header); err != nil {
//	    return err
//	}
//
//	// Load
//	f, err := serialization.ReadFile("model_classifier_CNN.born")
//	if err != nil {
//	    return err
//	}
//	err = net.LoadStateDict(f.StateDict())
package serialization
