// Package drvshim adapts hub buses to the shapes the chip drivers expect.
package drvshim

import (
	"github.com/pkg/errors"
	"tinygo.org/x/drivers"
)

// I2C forwards to a bus and keeps the first error seen since the last Err
// call. Several TinyGo drivers drop the error returned by Tx.
type I2C struct {
	bus drivers.I2C
	err error
}

func NewI2C(bus drivers.I2C) *I2C { return &I2C{bus: bus} }

func (s *I2C) Tx(addr uint16, w, r []byte) error {
	err := s.bus.Tx(addr, w, r)
	if err != nil && s.err == nil {
		s.err = err
	}
	return err
}

// Err returns and clears the recorded error.
func (s *I2C) Err() error {
	err := s.err
	s.err = nil
	return err
}

// ReadReg reads len(buf) bytes starting at reg.
func ReadReg(bus drivers.I2C, addr uint16, reg byte, buf []byte) error {
	return bus.Tx(addr, []byte{reg}, buf)
}

// WriteReg writes data starting at reg.
func WriteReg(bus drivers.I2C, addr uint16, reg byte, data ...byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	return bus.Tx(addr, w, nil)
}

// Probe reads an identification register and checks it against want.
func Probe(bus drivers.I2C, addr uint16, reg, want byte) error {
	var id [1]byte
	if err := ReadReg(bus, addr, reg, id[:]); err != nil {
		return errors.Wrapf(err, "probe %#02x", addr)
	}
	if id[0] != want {
		return errors.Errorf("probe %#02x: id %#02x, want %#02x", addr, id[0], want)
	}
	return nil
}
