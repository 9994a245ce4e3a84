// Copyright 2018 The Gringo Developers. All rights reserved.
// Use of this source code is governed by a GNU GENERAL PUBLIC LICENSE v3
// license that can be found in the LICENSE file.

package p2p

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// serializeTCPAddr writes addr to buff as [flag][ip][port], where flag is 0
// for a 4-byte IPv4 address or 1 for an 8-segment IPv6 address.
func serializeTCPAddr(buff io.Writer, addr *net.TCPAddr) {
	ip := addr.IP.To4()
	if ip == nil {
		ip = addr.IP
	}

	switch len(ip) {
	case net.IPv4len:
		if _, err := buff.Write([]byte{0}); err != nil {
			logrus.Fatal(err)
		}

		if _, err := buff.Write(ip); err != nil {
			logrus.Fatal(err)
		}

	case net.IPv6len:
		if _, err := buff.Write([]byte{1}); err != nil {
			logrus.Fatal(err)
		}

		for i := 0; i < net.IPv6len; i += 2 {
			segment := (uint16(ip[i]) << 8) + uint16(ip[i+1])

			if err := binary.Write(buff, binary.BigEndian, segment); err != nil {
				logrus.Fatal(err)
			}
		}

	default:
		logrus.Fatal("p2p: invalid net addr to serialize")
	}

	if err := binary.Write(buff, binary.BigEndian, uint16(addr.Port)); err != nil {
		logrus.Fatal(err)
	}
}

// deserializeTCPAddr is the inverse of serializeTCPAddr.
func deserializeTCPAddr(r io.Reader) (*net.TCPAddr, error) {
	var ipFlag uint8
	var ip []byte
	var port uint16

	if err := binary.Read(r, binary.BigEndian, &ipFlag); err != nil {
		return nil, err
	}

	switch ipFlag {
	case 0:
		ip = make([]byte, net.IPv4len)
		if _, err := io.ReadFull(r, ip); err != nil {
			return nil, err
		}

	case 1:
		ip = make([]byte, net.IPv6len)
		for i := 0; i < net.IPv6len; i += 2 {
			var segment uint16
			if err := binary.Read(r, binary.BigEndian, &segment); err != nil {
				return nil, err
			}

			ip[i] = byte(segment >> 8)
			ip[i+1] = byte(segment)
		}

	default:
		return nil, fmt.Errorf("p2p: invalid ip flag: %d", ipFlag)
	}

	if err := binary.Read(r, binary.BigEndian, &port); err != nil {
		return nil, err
	}

	return &net.TCPAddr{IP: ip, Port: int(port)}, nil
}
