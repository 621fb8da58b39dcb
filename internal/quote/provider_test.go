package quote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/dates"
)

var testLoc = time.FixedZone("ICT", 7*3600)

func testNormalizer() *dates.Normalizer {
	return dates.NewNormalizer(testLoc, clock.NewFake(time.Date(2026, 3, 16, 10, 0, 0, 0, testLoc)))
}

const quotePage = `<html><body>
<div class="quote">
  <span class="price">15.500</span>
  <span class="change-percent">+2,31%</span>
  <span class="update-time">Cập nhật: 13/03/2026 15:00</span>
</div>
</body></html>`

func TestHTMLProvider_Extract(t *testing.T) {
	p := NewHTMLProvider("cafef", "", ".price", ".change-percent", ".update-time", testNormalizer())
	asOf := time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc)

	snap, err := p.Extract([]byte(quotePage), asOf)
	require.NoError(t, err)
	assert.Equal(t, "15500", snap.Value.String())
	require.NotNil(t, snap.ChangePercent)
	assert.Equal(t, "+2.31%", *snap.ChangePercent)
	assert.True(t, time.Date(2026, 3, 13, 15, 0, 0, 0, testLoc).Equal(snap.AsOf))
}

func TestHTMLProvider_MissingValue(t *testing.T) {
	p := NewHTMLProvider("cafef", "", ".nope", "", "", nil)

	_, err := p.Extract([]byte(quotePage), time.Now())
	assert.ErrorIs(t, err, ErrNoValue)
}

func TestHTMLProvider_FetchAndExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, quotePage)
	}))
	defer srv.Close()

	p := NewHTMLProvider("local", srv.URL, ".price", "", "", nil)
	raw, err := p.Fetch(context.Background())
	require.NoError(t, err)

	asOf := time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc)
	snap, err := p.Extract(raw, asOf)
	require.NoError(t, err)
	assert.Equal(t, asOf, snap.AsOf)
	assert.Nil(t, snap.ChangePercent)
}

func TestHTMLProvider_FetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTMLProvider("blocked", srv.URL, ".price", "", "", nil).Fetch(context.Background())
	assert.ErrorContains(t, err, "403")
}

func TestPatternProvider_Extract(t *testing.T) {
	p, err := NewPatternProvider("vietstock", "",
		`(?i)giá\s*(?:hiện\s*tại)?\s*[:=]?\s*([0-9][0-9.,]*)`,
		`\(([+-]?[0-9.,]+\s*%)\)`,
		"", nil)
	require.NoError(t, err)

	asOf := time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc)
	snap, err := p.Extract([]byte("MZG - Giá hiện tại: 15.500 (-1,2%) khối lượng 12.000"), asOf)
	require.NoError(t, err)
	assert.Equal(t, "15500", snap.Value.String())
	require.NotNil(t, snap.ChangePercent)
	assert.Equal(t, "-1.20%", *snap.ChangePercent)
	assert.Equal(t, asOf, snap.AsOf)

	_, err = p.Extract([]byte("không có dữ liệu"), asOf)
	assert.ErrorIs(t, err, ErrNoValue)
}

func TestNewPatternProvider_Validation(t *testing.T) {
	_, err := NewPatternProvider("x", "", "", "", "", nil)
	assert.Error(t, err)

	_, err = NewPatternProvider("x", "", "([", "", "", nil)
	assert.Error(t, err)
}

func TestJSONProvider_Extract(t *testing.T) {
	p := NewJSONProvider("api", "", "data.0.close", "data.0.pctChange", "data.0.date", testNormalizer())
	asOf := time.Date(2026, 3, 16, 0, 0, 0, 0, testLoc)

	t.Run("numbers", func(t *testing.T) {
		snap, err := p.Extract([]byte(`{"data":[{"close":15.5,"pctChange":-0.64,"date":"2026-03-13"}]}`), asOf)
		require.NoError(t, err)
		assert.Equal(t, "15.5", snap.Value.String())
		require.NotNil(t, snap.ChangePercent)
		assert.Equal(t, "-0.64%", *snap.ChangePercent)
		assert.True(t, time.Date(2026, 3, 13, 0, 0, 0, 0, testLoc).Equal(snap.AsOf))
	})

	t.Run("strings and epoch", func(t *testing.T) {
		p := NewJSONProvider("api", "", "price", "change", "ts", nil)
		snap, err := p.Extract([]byte(`{"price":"15.500","change":"+1,5%","ts":1773370800}`), asOf)
		require.NoError(t, err)
		assert.Equal(t, "15500", snap.Value.String())
		assert.Equal(t, int64(1773370800), snap.AsOf.Unix())
	})

	t.Run("missing", func(t *testing.T) {
		_, err := p.Extract([]byte(`{"data":[]}`), asOf)
		assert.ErrorIs(t, err, ErrNoValue)

		_, err = p.Extract([]byte(`not json`), asOf)
		assert.Error(t, err)
	})
}
