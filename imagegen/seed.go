package imagegen

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand"

	"go.uber.org/zap"
)

// MaxSeed is the largest seed sent to the image service
const MaxSeed = 1000000000

var maxSeed = big.NewInt(MaxSeed)

//fallbackSeed uses less random math/rand in case of failure
func fallbackSeed(err error) int64 {
	zap.L().Warn("Could not use crypto/rand for seed", zap.Error(err))
	return mrand.Int63n(MaxSeed) + 1
}

//RandomSeed returns a seed uniform on [1, MaxSeed] using crypto/rand
func RandomSeed() int64 {
	k, err := rand.Int(rand.Reader, maxSeed)
	if err != nil {
		return fallbackSeed(err)
	}
	return k.Int64() + 1
}
