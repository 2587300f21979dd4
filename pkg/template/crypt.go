/*
Copyright © 2024 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package template

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
)

const cryptAlphabet = "./0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	md5CryptRounds    = 1000
	shaCryptRounds    = 5000
	shaCryptSaltBytes = 8
)

func randomSalt(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("template: generating crypt salt: %w", err)
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = cryptAlphabet[int(b)%len(cryptAlphabet)]
	}
	return string(out), nil
}

func to64(value uint32, n int) string {
	buf := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		buf = append(buf, cryptAlphabet[value&0x3f])
		value >>= 6
	}
	return string(buf)
}

// Md5Crypt implements the BSD/glibc "$1$" password hash (Poul-Henning
// Kamp's algorithm): a fresh random salt is generated for every call.
func Md5Crypt(password string) (string, error) {
	salt, err := randomSalt(8)
	if err != nil {
		return "", err
	}
	return md5CryptWithSalt(password, salt), nil
}

func md5CryptWithSalt(password, salt string) string {
	pw := []byte(password)
	s := []byte(salt)

	alt := md5.New()
	alt.Write(pw)
	alt.Write(s)
	alt.Write(pw)
	altSum := alt.Sum(nil)

	ctx := md5.New()
	ctx.Write(pw)
	ctx.Write([]byte("$1$"))
	ctx.Write(s)

	for pl := len(pw); pl > 0; pl -= 16 {
		n := pl
		if n > 16 {
			n = 16
		}
		ctx.Write(altSum[:n])
	}

	for i := len(pw); i != 0; i >>= 1 {
		if i&1 != 0 {
			ctx.Write([]byte{0})
		} else {
			ctx.Write(pw[:1])
		}
	}
	final := ctx.Sum(nil)

	for i := 0; i < md5CryptRounds; i++ {
		c := md5.New()
		if i&1 != 0 {
			c.Write(pw)
		} else {
			c.Write(final)
		}
		if i%3 != 0 {
			c.Write(s)
		}
		if i%7 != 0 {
			c.Write(pw)
		}
		if i&1 != 0 {
			c.Write(final)
		} else {
			c.Write(pw)
		}
		final = c.Sum(nil)
	}

	var out []byte
	emit := func(a, b, c byte, n int) {
		v := uint32(a)<<16 | uint32(b)<<8 | uint32(c)
		out = append(out, to64(v, n)...)
	}
	emit(final[0], final[6], final[12], 4)
	emit(final[1], final[7], final[13], 4)
	emit(final[2], final[8], final[14], 4)
	emit(final[3], final[9], final[15], 4)
	emit(final[4], final[10], final[5], 4)
	emit(0, final[11], 0, 2)

	return fmt.Sprintf("$1$%s$%s", salt, out)
}

// sha256Order and sha512Order hold the byte-permutation tables for the
// final base64 encoding pass of SHA-256-crypt and SHA-512-crypt, per the
// published "Unix crypt using SHA-256/SHA-512" algorithm.
var sha256Order = [][3]int{
	{0, 10, 20}, {21, 1, 11}, {12, 22, 2}, {3, 13, 23}, {24, 4, 14},
	{15, 25, 5}, {6, 16, 26}, {27, 7, 17}, {18, 28, 8}, {9, 19, 29},
}

var sha512Order = [][3]int{
	{0, 21, 42}, {22, 43, 1}, {44, 2, 23}, {3, 24, 45}, {25, 46, 4},
	{47, 5, 26}, {6, 27, 48}, {28, 49, 7}, {50, 8, 29}, {9, 30, 51},
	{31, 52, 10}, {53, 11, 32}, {12, 33, 54}, {34, 55, 13}, {56, 14, 35},
	{15, 36, 57}, {37, 58, 16}, {59, 17, 38}, {18, 39, 60}, {40, 61, 19},
	{62, 20, 41},
}

// shaCrypt implements the shared rounds structure of SHA-256-crypt and
// SHA-512-crypt: it differs from md5crypt in digest size and in deriving
// two repeating byte sequences (P from the password, S from the salt)
// used throughout the rounds loop instead of the raw password and salt.
func shaCrypt(password, salt string, newHash func() hash.Hash, digestSize int) []byte {
	pw := []byte(password)
	s := []byte(salt)

	digest := func(parts ...[]byte) []byte {
		h := newHash()
		for _, p := range parts {
			h.Write(p)
		}
		return h.Sum(nil)
	}

	repeat := func(src []byte, n int) []byte {
		out := make([]byte, 0, n)
		for len(out) < n {
			remain := n - len(out)
			if remain > len(src) {
				remain = len(src)
			}
			out = append(out, src[:remain]...)
		}
		return out
	}

	b := digest(pw, s, pw)

	aCtx := newHash()
	aCtx.Write(pw)
	aCtx.Write(s)
	for i := 0; i < len(pw)/digestSize; i++ {
		aCtx.Write(b)
	}
	if remainder := len(pw) % digestSize; remainder > 0 {
		aCtx.Write(b[:remainder])
	}
	for i := len(pw); i != 0; i >>= 1 {
		if i&1 != 0 {
			aCtx.Write(b)
		} else {
			aCtx.Write(pw)
		}
	}
	a := aCtx.Sum(nil)

	dpParts := make([][]byte, len(pw))
	for i := range dpParts {
		dpParts[i] = pw
	}
	pSeq := repeat(digest(dpParts...), len(pw))

	dsParts := make([][]byte, 16+int(a[0]))
	for i := range dsParts {
		dsParts[i] = s
	}
	sSeq := repeat(digest(dsParts...), len(s))

	for round := 0; round < shaCryptRounds; round++ {
		c := newHash()
		if round%2 != 0 {
			c.Write(pSeq)
		} else {
			c.Write(a)
		}
		if round%3 != 0 {
			c.Write(sSeq)
		}
		if round%7 != 0 {
			c.Write(pSeq)
		}
		if round%2 != 0 {
			c.Write(a)
		} else {
			c.Write(pSeq)
		}
		a = c.Sum(nil)
	}

	return a
}

// Sha256Crypt implements the glibc "$5$" password hash with the default
// 5000 rounds and a fresh random salt per call.
func Sha256Crypt(password string) (string, error) {
	salt, err := randomSalt(shaCryptSaltBytes)
	if err != nil {
		return "", err
	}
	return sha256CryptWithSalt(password, salt), nil
}

func sha256CryptWithSalt(password, salt string) string {
	final := shaCrypt(password, salt, sha256.New, sha256.Size)

	var out []byte
	for _, idx := range sha256Order {
		v := uint32(final[idx[0]])<<16 | uint32(final[idx[1]])<<8 | uint32(final[idx[2]])
		out = append(out, to64(v, 4)...)
	}
	v := uint32(final[31])<<8 | uint32(final[30])
	out = append(out, to64(v, 3)...)

	return fmt.Sprintf("$5$%s$%s", salt, out)
}

// Sha512Crypt implements the glibc "$6$" password hash with the default
// 5000 rounds and a fresh random salt per call.
func Sha512Crypt(password string) (string, error) {
	salt, err := randomSalt(shaCryptSaltBytes)
	if err != nil {
		return "", err
	}
	return sha512CryptWithSalt(password, salt), nil
}

func sha512CryptWithSalt(password, salt string) string {
	final := shaCrypt(password, salt, sha512.New, sha512.Size)

	var out []byte
	for _, idx := range sha512Order {
		v := uint32(final[idx[0]])<<16 | uint32(final[idx[1]])<<8 | uint32(final[idx[2]])
		out = append(out, to64(v, 4)...)
	}
	v := uint32(final[63])
	out = append(out, to64(v, 2)...)

	return fmt.Sprintf("$6$%s$%s", salt, out)
}
