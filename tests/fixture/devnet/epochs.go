// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"fmt"
)

// Epoch names a protocol-version window of the Stacks chain.
type Epoch string

const (
	Epoch10  Epoch = "1.0"
	Epoch20  Epoch = "2.0"
	Epoch205 Epoch = "2.05"
	Epoch21  Epoch = "2.1"
	Epoch22  Epoch = "2.2"
	Epoch23  Epoch = "2.3"
	Epoch24  Epoch = "2.4"
)

// Epochs lists every epoch in activation order.
var Epochs = []Epoch{Epoch10, Epoch20, Epoch205, Epoch21, Epoch22, Epoch23, Epoch24}

// ParseEpoch accepts an epoch name such as "2.05".
func ParseEpoch(s string) (Epoch, error) {
	for _, e := range Epochs {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown epoch %q", s)
}

// Before reports whether e activates before o.
func (e Epoch) Before(o Epoch) bool {
	return e.index() < o.index()
}

func (e Epoch) index() int {
	for i, epoch := range Epochs {
		if epoch == e {
			return i
		}
	}
	return -1
}

// EpochConfig holds burn-chain activation heights. A zero height leaves the
// epoch unscheduled. Epoch 1.0 always starts at genesis.
type EpochConfig struct {
	Epoch20        uint64 `json:"epoch_2_0,omitempty"`
	Epoch205       uint64 `json:"epoch_2_05,omitempty"`
	Epoch21        uint64 `json:"epoch_2_1,omitempty"`
	Epoch22        uint64 `json:"epoch_2_2,omitempty"`
	Epoch23        uint64 `json:"epoch_2_3,omitempty"`
	Epoch24        uint64 `json:"epoch_2_4,omitempty"`
	Pox2Activation uint64 `json:"pox_2_activation,omitempty"`
}

// EpochHeight pairs an epoch with its activation height.
type EpochHeight struct {
	Epoch  Epoch  `json:"epoch"`
	Height uint64 `json:"height"`
}

// DefaultEpochConfig returns the heights used for unset epochs up to 2.1.
func DefaultEpochConfig() EpochConfig {
	return EpochConfig{
		Epoch20:        DefaultEpoch20Height,
		Epoch205:       DefaultEpoch205Height,
		Epoch21:        DefaultEpoch21Height,
		Pox2Activation: DefaultPox2ActivationHeight,
	}
}

// WithDefaults fills the unset epochs up to 2.1 and the PoX 2 activation
// height. An unset height keeps its default distance from the epoch
// before it, so a caller moving 2.0 past the defaults shifts the later
// defaults with it. Epochs 2.2 and later are only scheduled when given.
func (c EpochConfig) WithDefaults() EpochConfig {
	d := DefaultEpochConfig()
	fields := []struct {
		height     *uint64
		defaultVal uint64
	}{
		{height: &c.Epoch20, defaultVal: d.Epoch20},
		{height: &c.Epoch205, defaultVal: d.Epoch205},
		{height: &c.Epoch21, defaultVal: d.Epoch21},
		{height: &c.Pox2Activation, defaultVal: d.Pox2Activation},
	}
	var prev, prevDefault uint64
	for _, f := range fields {
		if *f.height == 0 {
			*f.height = max(f.defaultVal, prev+f.defaultVal-prevDefault)
		}
		prev, prevDefault = *f.height, f.defaultVal
	}
	return c
}

// Height returns the activation height of [e] and whether it is scheduled.
func (c EpochConfig) Height(e Epoch) (uint64, bool) {
	var h uint64
	switch e {
	case Epoch10:
		return 0, true
	case Epoch20:
		h = c.Epoch20
	case Epoch205:
		h = c.Epoch205
	case Epoch21:
		h = c.Epoch21
	case Epoch22:
		h = c.Epoch22
	case Epoch23:
		h = c.Epoch23
	case Epoch24:
		h = c.Epoch24
	default:
		return 0, false
	}
	return h, h != 0
}

// Scheduled returns the scheduled epochs in activation order, starting with
// epoch 1.0 at height 0.
func (c EpochConfig) Scheduled() []EpochHeight {
	scheduled := make([]EpochHeight, 0, len(Epochs))
	for _, e := range Epochs {
		h, ok := c.Height(e)
		if !ok {
			break
		}
		scheduled = append(scheduled, EpochHeight{Epoch: e, Height: h})
	}
	return scheduled
}

// EpochAt returns the epoch active at [burnHeight].
func (c EpochConfig) EpochAt(burnHeight uint64) Epoch {
	current := Epoch10
	for _, eh := range c.Scheduled() {
		if burnHeight < eh.Height {
			break
		}
		current = eh.Epoch
	}
	return current
}

// Validate checks that scheduled epochs activate in order, without gaps.
func (c EpochConfig) Validate() error {
	if c.Epoch20 == 0 {
		return newConfigError("epoch_2_0", "epoch 2.0 must activate at height 1 or later")
	}
	var (
		prev      = EpochHeight{Epoch: Epoch10}
		unsetFrom Epoch
	)
	for _, e := range Epochs[1:] {
		h, ok := c.Height(e)
		switch {
		case !ok && unsetFrom == "":
			unsetFrom = e
		case ok && unsetFrom != "":
			return newConfigError(
				epochField(e),
				"epoch %s is scheduled at %d but earlier epoch %s is not scheduled",
				e, h, unsetFrom,
			)
		case ok && h < prev.Height:
			return newConfigError(
				epochField(e),
				"epoch %s height %d is lower than epoch %s height %d",
				e, h, prev.Epoch, prev.Height,
			)
		}
		if ok {
			prev = EpochHeight{Epoch: e, Height: h}
		}
	}
	if c.Pox2Activation != 0 && c.Pox2Activation < c.Epoch21 {
		return newConfigError(
			"pox_2_activation",
			"PoX 2 activation height %d is lower than epoch 2.1 height %d",
			c.Pox2Activation, c.Epoch21,
		)
	}
	return nil
}

func epochField(e Epoch) string {
	switch e {
	case Epoch20:
		return "epoch_2_0"
	case Epoch205:
		return "epoch_2_05"
	case Epoch21:
		return "epoch_2_1"
	case Epoch22:
		return "epoch_2_2"
	case Epoch23:
		return "epoch_2_3"
	case Epoch24:
		return "epoch_2_4"
	default:
		return string(e)
	}
}
