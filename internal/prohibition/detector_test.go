package prohibition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"formrunner/internal/config"
)

func testDetector() *Detector {
	return NewDetector(config.DefaultWorkerConfig().Prohibition, zap.NewNop())
}

func TestDetectStrongRefusal(t *testing.T) {
	html := `<html><body>
		<form><input name="email"></form>
		<p>営業目的のお問い合わせはお断りしております。</p>
	</body></html>`

	r := testDetector().Detect(html, "t1")
	require.True(t, r.Detected)
	assert.True(t, r.Level.AtLeast("moderate"))
	assert.NotEmpty(t, r.Phrases)
}

func TestDetectPhoneSolicitationRefusal(t *testing.T) {
	html := `<html><body>
		<form><input name="email"></form>
		<footer>営業電話はお断りしております。</footer>
	</body></html>`

	r := testDetector().Detect(html, "t1")
	require.True(t, r.Detected)
	assert.True(t, r.Level.AtLeast("moderate"),
		"a footer refusal of sales calls is not a weak signal")
	assert.True(t, ShouldAbort(r, config.DefaultWorkerConfig().Prohibition))
}

func TestBusinessHoursNotRefusal(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"opening hours", `<p>営業時間: 平日9:00〜18:00</p>`},
		{"business days", `<p>営業日にご返信いたします。</p>`},
		{"sales office", `<footer>東京営業所 03-1234-5678</footer>`},
	}
	d := testDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := d.Detect("<html><body>"+tt.html+"</body></html>", "t1")
			assert.False(t, r.Detected, "page: %s", tt.html)
		})
	}
}

func TestFallbackScanFindsFooterNotice(t *testing.T) {
	html := `<html><body>
		<p>製品情報とニュースのご案内です。</p>
		<footer>営業・勧誘を目的としたお問い合わせはご遠慮ください。</footer>
	</body></html>`

	r := scanSemanticElements(html)
	require.True(t, r.Detected)
	assert.NotEmpty(t, r.Phrases)
}

func TestFallbackScanBounded(t *testing.T) {
	items := ""
	for i := 0; i < 500; i++ {
		items += "<li>商品カテゴリ</li>"
	}
	html := "<html><body><ul>" + items + "</ul></body></html>"

	r := scanSemanticElements(html)
	assert.False(t, r.Detected)
}

func TestShouldAbortAnyThreshold(t *testing.T) {
	cfg := config.DefaultWorkerConfig().Prohibition

	assert.True(t, ShouldAbort(Result{Detected: true, Level: LevelMedium, Score: 40}, cfg),
		"moderate level alone aborts")
	assert.True(t, ShouldAbort(Result{Detected: true, Level: LevelLow, Score: 30,
		Phrases: []string{"a", "b"}}, cfg), "match count alone aborts")
	assert.False(t, ShouldAbort(Result{Detected: true, Level: LevelVeryLow, Score: 15}, cfg))
	assert.False(t, ShouldAbort(Result{Detected: false}, cfg))
}

func TestCacheHitAndTTL(t *testing.T) {
	cache := newResultCache(4, time.Minute)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	cache.put("<html>x</html>", "t1", Result{Detected: true, Score: 70})

	r, ok := cache.get("<html>x</html>", "t1")
	require.True(t, ok)
	assert.Equal(t, 70, r.Score)

	_, ok = cache.get("<html>x</html>", "t2")
	assert.False(t, ok, "tenant key partitions the cache")

	now = now.Add(2 * time.Minute)
	_, ok = cache.get("<html>x</html>", "t1")
	assert.False(t, ok, "expired entries do not serve")
}

func TestCacheEviction(t *testing.T) {
	cache := newResultCache(2, time.Minute)
	cache.put("a", "t", Result{Score: 1})
	cache.put("b", "t", Result{Score: 2})
	cache.put("c", "t", Result{Score: 3})

	_, ok := cache.get("a", "t")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = cache.get("c", "t")
	assert.True(t, ok)
}
