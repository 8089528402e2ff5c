package soliscloud

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

// ContentType is pinned by the API contract; any other value invalidates
// the signature server-side.
const ContentType = "application/json;charset=UTF-8"

// Signature carries the header values for one signed call. The Date used
// inside the signed string and the Date header must be the same reading,
// which is why all three travel together.
type Signature struct {
	Date          string
	ContentMD5    string
	Authorization string
}

// Sign computes the authentication material for a single API call:
//
//	stringToSign = verb \n contentMD5 \n contentType \n date \n resourcePath
//	Authorization = "API " + keyID + ":" + base64(HMAC-SHA1(keySecret, stringToSign))
//
// with contentMD5 the base64 of the raw MD5 digest of body and date the
// RFC 1123 rendering of at in UTC. Deterministic for identical inputs.
func Sign(verb, resourcePath string, body []byte, keyID, keySecret string, at time.Time) Signature {
	contentMD5 := ContentMD5(body)
	date := at.UTC().Format(http.TimeFormat)

	stringToSign := strings.Join([]string{verb, contentMD5, ContentType, date, resourcePath}, "\n")

	mac := hmac.New(sha1.New, []byte(keySecret))
	mac.Write([]byte(stringToSign))

	return Signature{
		Date:          date,
		ContentMD5:    contentMD5,
		Authorization: "API " + keyID + ":" + base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}
}

// ContentMD5 returns the base64-encoded MD5 digest of body.
func ContentMD5(body []byte) string {
	sum := md5.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}
