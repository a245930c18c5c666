package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/mopscov/internal/model"
)

func TestResolveDownloadReference(t *testing.T) {
	tests := []struct {
		name string
		href string
		want string
	}{
		{
			"script link",
			`javascript:readfile2("A","2330","202401_2330_AI1.pdf");`,
			testBaseURL + "?step=9&kind=A&co_id=2330&filename=202401_2330_AI1.pdf",
		},
		{
			"unparseable script link kept as is",
			`javascript:void(0)`,
			`javascript:void(0)`,
		},
		{
			"root relative",
			"/pdf/202401_2330_AI1_20250805_120341.pdf",
			"https://doc.twse.com.tw/pdf/202401_2330_AI1_20250805_120341.pdf",
		},
		{
			"path relative",
			"t57sb01?step=9&filename=x.pdf",
			"https://doc.twse.com.tw/server-java/t57sb01?step=9&filename=x.pdf",
		},
		{
			"absolute",
			"https://mirror.example.com/a.pdf",
			"https://mirror.example.com/a.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDownloadReference(testBaseURL, tt.href))
		})
	}
}

func TestFilenameFromLink(t *testing.T) {
	assert.Equal(t, "202401_2330_A12.pdf", filenameFromLink(" 202401_2330_A12.pdf ", ""))
	assert.Equal(t, "b.pdf", filenameFromLink("download", "/files/a/b.pdf"))
	assert.Equal(t, "", filenameFromLink("download", "/files/a/b.html"))
}

func TestFindPDFLink(t *testing.T) {
	page := `<html><body><a href='/pdf/202401_2330_AI1_20250805_120341.pdf'>202401_2330_AI1.pdf</a></body></html>`
	link, err := FindPDFLink(page, "https://doc.twse.com.tw")
	require.NoError(t, err)
	assert.Equal(t, "https://doc.twse.com.tw/pdf/202401_2330_AI1_20250805_120341.pdf", link)
}

func TestFindPDFLink_ScriptFallback(t *testing.T) {
	page := `<html><script>location.href = '/pdf/202401_2330_A12_20250805.pdf';</script></html>`
	link, err := FindPDFLink(page, "https://doc.twse.com.tw/")
	require.NoError(t, err)
	assert.Equal(t, "https://doc.twse.com.tw/pdf/202401_2330_A12_20250805.pdf", link)
}

func TestFindPDFLink_Missing(t *testing.T) {
	_, err := FindPDFLink(`<html><body>檔案不存在</body></html>`, "https://doc.twse.com.tw")
	assert.ErrorIs(t, err, model.ErrNoPDFLink)
}
