// wsfabric - clustered WebSocket messaging framework
// Copyright (C) 2025 wsfabric contributors
//
// This file is part of wsfabric.
//
// wsfabric is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// wsfabric is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public
// License along with wsfabric. If not, see <https://www.gnu.org/licenses/>.

package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/sage-x-project/wsfabric/internal/metrics"
)

const (
	saltSize = 16
	ivSize   = 16
)

// Errors returned by Decode; all boundary failures surface as one of
// these rather than a panic, per spec.md §4.1.
var (
	ErrInvalidPacket   = errors.New("codec: invalid packet shape")
	ErrTruncated       = errors.New("codec: truncated ciphertext")
	ErrBadPadding      = errors.New("codec: invalid padding")
	ErrMalformedJSON   = errors.New("codec: malformed json payload")
)

// Codec encodes and decodes Packets for one WebSocket edge. Password
// absent means plaintext JSON framing; password present means
// AES-256-CBC framing with a per-message random salt+iv (spec.md §4.1).
type Codec struct {
	Password string
	Binary   bool
}

// New creates a Codec. An empty password selects plaintext mode.
func New(password string, binary bool) *Codec {
	return &Codec{Password: password, Binary: binary}
}

// Encode serializes p into the wire representation for this codec's
// configuration. The returned bool reports whether the caller should
// send the result as a binary WebSocket frame (true) or a text frame
// (false, with the bytes already valid UTF-8: JSON or Base64).
func (c *Codec) Encode(p *Packet) ([]byte, bool, error) {
	start := time.Now()
	out, binary, err := c.encode(p)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CodecOperations.WithLabelValues("encode", status).Inc()
	metrics.CodecDuration.WithLabelValues("encode").Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.PacketSize.Observe(float64(len(out)))
	}
	return out, binary, err
}

func (c *Codec) encode(p *Packet) ([]byte, bool, error) {
	plaintext, err := json.Marshal(p)
	if err != nil {
		return nil, false, err
	}

	if c.Password == "" {
		return plaintext, c.Binary, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, false, err
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, false, err
	}

	key := deriveKey(salt, c.Password)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, false, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, saltSize+ivSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, ciphertext...)

	if c.Binary {
		return out, true, nil
	}

	b64 := make([]byte, base64.StdEncoding.EncodedLen(len(out)))
	base64.StdEncoding.Encode(b64, out)
	return b64, false, nil
}

// Decode parses data received from this codec's WebSocket edge.
func (c *Codec) Decode(data []byte) (*Packet, error) {
	start := time.Now()
	p, err := c.decode(data)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.CodecOperations.WithLabelValues("decode", status).Inc()
	metrics.CodecDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())
	return p, err
}

func (c *Codec) decode(data []byte) (*Packet, error) {
	if c.Password == "" {
		if len(data) == 0 {
			return &Packet{}, nil
		}
		var p Packet
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, ErrMalformedJSON
		}
		return &p, nil
	}

	raw := data
	if !c.Binary {
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil {
			return nil, ErrMalformedJSON
		}
		raw = decoded
	}

	if len(raw) < saltSize+ivSize+aes.BlockSize {
		return nil, ErrTruncated
	}

	salt := raw[:saltSize]
	iv := raw[saltSize : saltSize+ivSize]
	ciphertext := raw[saltSize+ivSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrTruncated
	}

	key := deriveKey(salt, c.Password)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plaintextPadded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintextPadded, ciphertext)

	plaintext, err := pkcs7Unpad(plaintextPadded, aes.BlockSize)
	if err != nil {
		return nil, ErrBadPadding
	}

	var p Packet
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, ErrMalformedJSON
	}
	return &p, nil
}

// deriveKey implements spec.md §4.1 step 2: key = HMAC-SHA256(salt,
// password), i.e. salt is the HMAC message and password is the HMAC
// key. The 32-byte SHA-256 output is used directly as the AES-256 key.
func deriveKey(salt []byte, password string) []byte {
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write(salt)
	return mac.Sum(nil)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, ErrBadPadding
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, ErrBadPadding
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, ErrBadPadding
		}
	}
	return data[:n-padLen], nil
}
