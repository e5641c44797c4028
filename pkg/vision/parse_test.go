package vision

import (
	"reflect"
	"testing"
)

func TestParseReply_PlainJSON(t *testing.T) {
	raw := `{"caption":"一张街景照片","ocr_text":"欢迎光临","objects":["招牌","行人"]}`
	got := ParseReply(raw)
	want := Result{Caption: "一张街景照片", OCRText: "欢迎光临", Objects: []string{"招牌", "行人"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseReply = %+v, want %+v", got, want)
	}
}

func TestParseReply_CodeFence(t *testing.T) {
	raw := "```json\n{\"caption\":\"菜单\",\"ocr_text\":\"宫保鸡丁 38元\",\"objects\":[]}\n```"
	got := ParseReply(raw)
	if got.Caption != "菜单" || got.OCRText != "宫保鸡丁 38元" {
		t.Errorf("fenced reply parsed as %+v", got)
	}
}

func TestParseReply_EmbeddedObject(t *testing.T) {
	raw := `好的，以下是分析结果：{"caption":"发票","ocr_text":"金额 100.00"} 希望对你有帮助。`
	got := ParseReply(raw)
	if got.Caption != "发票" || got.OCRText != "金额 100.00" {
		t.Errorf("embedded object parsed as %+v", got)
	}
}

func TestParseReply_RepairableJSON(t *testing.T) {
	// Trailing comma is not valid JSON but should be repaired, not dropped.
	raw := `{"caption":"白板","ocr_text":"会议 3pm","objects":["白板",]}`
	got := ParseReply(raw)
	if got.Caption != "白板" || got.OCRText != "会议 3pm" {
		t.Errorf("repairable reply parsed as %+v", got)
	}
}

func TestParseReply_PlainText(t *testing.T) {
	raw := "这是一张猫的照片，没有文字。"
	got := ParseReply(raw)
	if got.Caption != raw || got.OCRText != "" || len(got.Objects) != 0 {
		t.Errorf("plain text reply parsed as %+v", got)
	}
}

func TestParseReply_NonStringObjects(t *testing.T) {
	raw := `{"caption":"桌面","objects":["键盘", 42, null, "鼠标"]}`
	got := ParseReply(raw)
	if !reflect.DeepEqual(got.Objects, []string{"键盘", "鼠标"}) {
		t.Errorf("objects = %v, want non-strings dropped", got.Objects)
	}
}

func TestResult_Empty(t *testing.T) {
	if !(Result{}).Empty() {
		t.Error("zero Result should be empty")
	}
	if (Result{OCRText: "x"}).Empty() {
		t.Error("result with OCR text should not be empty")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.Enabled() {
		t.Error("nil client reports enabled")
	}
	if c.Model() != "" {
		t.Error("nil client reports a model")
	}
	if _, err := c.Describe(t.Context(), []byte{1}, "png", ""); err != ErrDisabled {
		t.Errorf("nil client Describe err = %v, want ErrDisabled", err)
	}
}
