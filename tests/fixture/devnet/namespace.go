// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gofrs/flock"
	"lukechampine.com/blake3"

	"github.com/stacks-network/stacks-devnet/utils/perms"
)

var errNamespaceHeld = errors.New("namespace is held by another network")

// Ports is the block of local ports reserved for a network.
type Ports struct {
	BitcoindRPC uint16 `json:"bitcoindRPC"`
	BitcoindP2P uint16 `json:"bitcoindP2P"`
	StacksRPC   uint16 `json:"stacksRPC"`
	StacksP2P   uint16 `json:"stacksP2P"`
	Observer    uint16 `json:"observer"`
}

// All returns the ports in offset order.
func (p Ports) All() []uint16 {
	return []uint16{p.BitcoindRPC, p.BitcoindP2P, p.StacksRPC, p.StacksP2P, p.Observer}
}

// NetworkIDForKey derives the network id of an isolation key.
func NetworkIDForKey(key string) uint32 {
	sum := blake3.Sum256([]byte(key))
	return binary.BigEndian.Uint32(sum[:4])
}

// SlotForNetworkID maps a network id to its port slot.
func SlotForNetworkID(networkID uint32) uint32 {
	return networkID % portSlots
}

// PortsForSlot returns the port block of a slot.
func PortsForSlot(slot uint32) Ports {
	base := uint16(basePort + slot*portsPerSlot)
	return Ports{
		BitcoindRPC: base + bitcoindRPCPortOffset,
		BitcoindP2P: base + bitcoindP2PPortOffset,
		StacksRPC:   base + stacksRPCPortOffset,
		StacksP2P:   base + stacksP2PPortOffset,
		Observer:    base + observerPortOffset,
	}
}

// namespace is an exclusive claim on a port slot, held through a file lock
// so that concurrent test processes sharing a root dir cannot collide.
type namespace struct {
	slot     uint32
	ports    Ports
	lockPath string

	lock        *flock.Flock
	releaseOnce sync.Once
	releaseErr  error
}

func reserveNamespace(rootDir string, networkID uint32) (*namespace, error) {
	slot := SlotForNetworkID(networkID)
	locksDir := filepath.Join(rootDir, locksDirname)
	if err := os.MkdirAll(locksDir, perms.ReadWriteExecute); err != nil {
		return nil, fmt.Errorf("failed to create locks dir: %w", err)
	}

	lockPath := filepath.Join(locksDir, "slot-"+strconv.FormatUint(uint64(slot), 10)+".lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, &ConfigError{
			Field:  "isolation_key",
			Reason: "failed to lock " + lockPath,
			Err:    err,
		}
	}
	if !locked {
		return nil, &ConfigError{
			Field:  "isolation_key",
			Reason: fmt.Sprintf("port slot %d is reserved by %s", slot, lockPath),
			Err:    errNamespaceHeld,
		}
	}

	ns := &namespace{
		slot:     slot,
		ports:    PortsForSlot(slot),
		lockPath: lockPath,
		lock:     lock,
	}
	if err := checkPortsAvailable(ns.ports); err != nil {
		_ = ns.release()
		return nil, err
	}
	return ns, nil
}

// release frees the slot. Safe to call more than once.
func (ns *namespace) release() error {
	ns.releaseOnce.Do(func() {
		if err := ns.lock.Unlock(); err != nil {
			ns.releaseErr = fmt.Errorf("failed to unlock %s: %w", ns.lockPath, err)
		}
	})
	return ns.releaseErr
}

// checkPortsAvailable fails if a foreign process already listens on any
// port of the block.
func checkPortsAvailable(ports Ports) error {
	for _, port := range ports.All() {
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port)))
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return &ConfigError{
				Field:  "ports",
				Reason: "port " + strconv.Itoa(int(port)) + " is already in use",
				Err:    err,
			}
		}
		_ = l.Close()
	}
	return nil
}
