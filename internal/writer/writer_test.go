package writer

import (
	"context"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bwhelper/internal/config"
	"bwhelper/internal/extractor"
	"bwhelper/internal/quiz"
)

var testStyle = config.Marker{Enabled: true, Color: "#43a047", SizePx: 8}

func surfaceAndQuestion(t *testing.T, page string) (*DocumentSurface, *quiz.Question) {
	t.Helper()
	s, err := NewDocumentSurfaceFromHTML(page)
	require.NoError(t, err)
	doc, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	q, err := extractor.New().Extract(doc)
	require.NoError(t, err)
	return s, q
}

func markerCount(t *testing.T, s *DocumentSurface) int {
	doc, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return doc.Find("." + MarkerClass).Length()
}

const choicePage = `<html><body>
<div class="question active">
  <p>Which animal is a mammal?</p>
  <input type="radio" name="q1" id="a1"><label for="a1">Shark</label>
  <input type="radio" name="q1" id="a2"><label for="a2">Dolphin</label>
  <input type="radio" name="q1" id="a3"><label for="a3">Trout</label>
  <input type="radio" name="q1" id="a4"><label for="a4">Octopus</label>
</div></body></html>`

func TestWriteChoiceByIndex(t *testing.T) {
	s, q := surfaceAndQuestion(t, choicePage)

	res := New(testStyle).Write(context.Background(), s, q, "2", Options{Fill: true})
	require.True(t, res.OK)
	assert.False(t, res.Emergency)

	doc, _ := s.Snapshot(context.Background())
	checked := doc.Find("input[checked]")
	require.Equal(t, 1, checked.Length())
	id, _ := checked.Attr("id")
	assert.Equal(t, "a2", id)
	assert.Equal(t, 0, markerCount(t, s))
}

func TestWriteChoiceByText(t *testing.T) {
	s, q := surfaceAndQuestion(t, choicePage)

	res := New(testStyle).Write(context.Background(), s, q, "I think it's the octopus", Options{Fill: true})
	require.True(t, res.OK)

	doc, _ := s.Snapshot(context.Background())
	id, _ := doc.Find("input[checked]").Attr("id")
	assert.Equal(t, "a4", id)
}

func TestChoiceIndex(t *testing.T) {
	opts := []string{"Shark", "Dolphin", "Trout"}
	assert.Equal(t, 1, ChoiceIndex(opts, 3, " 2 "))
	assert.Equal(t, 0, ChoiceIndex(opts, 3, "7"))
	assert.Equal(t, 2, ChoiceIndex(opts, 3, "trout"))
	assert.Equal(t, 1, ChoiceIndex(opts, 3, "a dolphin is a mammal"))
	assert.Equal(t, 0, ChoiceIndex(opts, 3, "no idea"))
	assert.Equal(t, 0, ChoiceIndex(nil, 0, ""))
}

func TestWriteFreeTextExact(t *testing.T) {
	s, q := surfaceAndQuestion(t, `<html><body><div class="question">
<p>What is the name of the animal center?</p>
<input type="text" id="answer">
</div></body></html>`)

	answer := "Wildlife Haven – “Zoë” & co.  "
	res := New(testStyle).Write(context.Background(), s, q, answer, Options{Fill: true})
	require.True(t, res.OK)

	doc, _ := s.Snapshot(context.Background())
	got, ok := doc.Find("#answer").Attr("value")
	require.True(t, ok)
	assert.Equal(t, answer, got)
}

func TestWriteTextarea(t *testing.T) {
	s, q := surfaceAndQuestion(t, `<html><body><div class="question">
<p>Describe the weather today</p>
<textarea id="t"></textarea>
</div></body></html>`)

	res := New(testStyle).Write(context.Background(), s, q, "Sunny\nand warm", Options{Fill: true})
	require.True(t, res.OK)
	doc, _ := s.Snapshot(context.Background())
	assert.Equal(t, "Sunny\nand warm", doc.Find("#t").Text())
}

const dragPage = `<html><body>
<div class="bw-question-wrapper">
  <p>The nurse <span class="bw-dropzone"></span> people who are <span class="bw-dropzone"></span> or <span class="bw-dropzone"></span>.
  She <span class="bw-dropzone"></span> their <span class="bw-dropzone"></span> until they are well.</p>
  <div class="word-bank">
    <span class="bw-draggable">well</span>
    <span class="bw-draggable">looks after</span>
    <span class="bw-draggable">injuries</span>
    <span class="bw-draggable">ill</span>
    <span class="bw-draggable">injured</span>
  </div>
</div></body></html>`

func TestWriteDragWordsInOrder(t *testing.T) {
	s, q := surfaceAndQuestion(t, dragPage)
	require.Equal(t, quiz.KindDragWords, q.Kind)
	require.Len(t, q.ZoneHandles, 5)

	answer := `["injured","ill","looks after","injuries","well"]`
	res := New(testStyle).Write(context.Background(), s, q, answer, Options{Fill: true})
	require.True(t, res.OK)
	assert.Equal(t, 5, res.Filled)

	doc, _ := s.Snapshot(context.Background())
	zones := doc.Find(".bw-dropzone")
	want := []string{"injured", "ill", "looks after", "injuries", "well"}
	for i, w := range want {
		assert.Equal(t, w, zones.Eq(i).Text(), "zone %d", i+1)
	}
	assert.Equal(t, 5, doc.Find(`.word-bank .bw-draggable[style="display: none"]`).Length())
}

func TestWriteDragWordsPartial(t *testing.T) {
	s, q := surfaceAndQuestion(t, `<html><body>
<div class="bw-question-wrapper">
  <p>A <span class="bw-dropzone"></span> B <span class="bw-dropzone"></span> C <span class="bw-dropzone"></span>.</p>
  <div class="word-bank">
    <span class="bw-draggable">ill</span>
    <span class="bw-draggable">well</span>
  </div>
</div></body></html>`)

	res := New(testStyle).Write(context.Background(), s, q, `["ill","injured","well"]`, Options{Fill: true})
	require.True(t, res.OK)
	assert.Equal(t, 2, res.Filled)
	assert.False(t, res.Emergency)

	doc, _ := s.Snapshot(context.Background())
	zones := doc.Find(".bw-dropzone")
	assert.Equal(t, "ill", zones.Eq(0).Text())
	assert.Equal(t, "", zones.Eq(1).Text())
	assert.Equal(t, "well", zones.Eq(2).Text())
}

func TestMarkerIsIdempotent(t *testing.T) {
	s, q := surfaceAndQuestion(t, choicePage)
	w := New(testStyle)

	for i := 0; i < 2; i++ {
		res := w.Write(context.Background(), s, q, "2", Options{Fill: true, Mark: true})
		require.True(t, res.OK)
	}
	assert.Equal(t, 1, markerCount(t, s))

	doc, _ := s.Snapshot(context.Background())
	q2, err := extractor.New().Extract(doc)
	require.NoError(t, err)
	w.Write(context.Background(), s, q2, "2", Options{Mark: true})
	assert.Equal(t, 1, markerCount(t, s))

	title, _ := doc.Find("." + MarkerClass).Attr("title")
	assert.Equal(t, "BW: Dolphin", title)
}

func TestMarkOnlyDoesNotSelect(t *testing.T) {
	s, q := surfaceAndQuestion(t, choicePage)

	res := New(testStyle).Write(context.Background(), s, q, "3", Options{Mark: true})
	require.True(t, res.OK)

	doc, _ := s.Snapshot(context.Background())
	assert.Equal(t, 0, doc.Find("input[checked]").Length())
	assert.Equal(t, 1, markerCount(t, s))
}

func TestWriteEmergencyFallback(t *testing.T) {
	s, err := NewDocumentSurfaceFromHTML(`<html><body>
<div><label><input type="radio" name="a" id="a1"> x</label><label><input type="radio" name="a" id="a2"> y</label></div>
<div><label><input type="radio" name="b" id="b1"> x</label><label><input type="radio" name="b" id="b2"> y</label></div>
</body></html>`)
	require.NoError(t, err)

	q := &quiz.Question{Text: "Pick one", Kind: quiz.KindMultipleChoice}
	res := New(testStyle).Write(context.Background(), s, q, "2", Options{Fill: true, Mark: true})
	assert.True(t, res.OK)
	assert.True(t, res.Emergency)
	assert.Equal(t, 2, res.Filled)

	doc, _ := s.Snapshot(context.Background())
	ids := doc.Find("input[checked]").Map(func(_ int, s *goquery.Selection) string {
		id, _ := s.Attr("id")
		return id
	})
	assert.Equal(t, []string{"a2", "b2"}, ids)
	assert.Equal(t, 2, markerCount(t, s))
}

type panicSurface struct {
	*DocumentSurface
}

func (p panicSurface) Select(ctx context.Context, h quiz.Handle) error {
	panic("boom")
}

func TestWriteRecoversFromPanic(t *testing.T) {
	s, q := surfaceAndQuestion(t, choicePage)

	var res Result
	assert.NotPanics(t, func() {
		res = New(testStyle).Write(context.Background(), panicSurface{s}, q, "1", Options{Fill: true})
	})
	assert.False(t, res.OK)
	assert.True(t, res.Emergency)
	assert.Equal(t, "boom", res.Error)
}

func TestWriteEmergencyFlatFormMarksEveryGroup(t *testing.T) {
	s, err := NewDocumentSurfaceFromHTML(`<html><body><form>
<input type="radio" name="a" id="a1"><input type="radio" name="a" id="a2">
<input type="radio" name="b" id="b1"><input type="radio" name="b" id="b2">
</form></body></html>`)
	require.NoError(t, err)

	q := &quiz.Question{Text: "Pick one", Kind: quiz.KindMultipleChoice}
	res := New(testStyle).Write(context.Background(), s, q, "2", Options{Fill: true, Mark: true})
	require.True(t, res.OK)
	assert.True(t, res.Emergency)
	assert.Equal(t, 2, res.Filled)
	assert.Equal(t, 2, markerCount(t, s))

	doc, _ := s.Snapshot(context.Background())
	assert.True(t, doc.Find("#a2").Next().Is("."+MarkerClass))
	assert.True(t, doc.Find("#b2").Next().Is("."+MarkerClass))
	assert.Equal(t, 2, doc.Find("input[checked]").Length())
}

// dragSurface 模拟页面自己响应了拖放
type dragSurface struct {
	*DocumentSurface
	drags     int
	relocates int
}

func (d *dragSurface) Drag(ctx context.Context, word, zone quiz.Handle) (bool, error) {
	d.drags++
	return true, nil
}

func (d *dragSurface) Relocate(ctx context.Context, word, zone quiz.Handle) error {
	d.relocates++
	return d.DocumentSurface.Relocate(ctx, word, zone)
}

func TestWriteDragSkipsRelocateWhenPageMoved(t *testing.T) {
	s, q := surfaceAndQuestion(t, dragPage)
	surface := &dragSurface{DocumentSurface: s}

	answer := `["injured","ill","looks after","injuries","well"]`
	res := New(testStyle).Write(context.Background(), surface, q, answer, Options{Fill: true})
	require.True(t, res.OK)
	assert.Equal(t, 5, res.Filled)
	assert.Equal(t, 5, surface.drags)
	assert.Zero(t, surface.relocates)

	doc, _ := s.Snapshot(context.Background())
	assert.Zero(t, doc.Find(`.bw-draggable[style="display: none"]`).Length())
}
