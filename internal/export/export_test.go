package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tariffsim/tariff-engine/internal/model"
)

func TestWriteCSV(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	entries := []model.CalculationHistoryEntry{{
		ID:            "c1",
		Product:       "Rice",
		Brand:         "Golden, Premium",
		ExportingFrom: "Japan",
		ImportingTo:   "Singapore",
		Quantity:      decimal.NewFromInt(10),
		Unit:          "kg",
		ProductCost:   decimal.NewFromInt(20),
		TariffRate:    decimal.NewFromFloat(15),
		TariffAmount:  decimal.NewFromInt(3),
		TotalCost:     decimal.NewFromInt(23),
		TariffType:    "AHS (with FTA)",
		CreatedAt:     created,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Product,Brand,Exporting From,Importing To,Quantity,Unit,Product Cost,Tariff Rate,Tariff Amount,Total Cost,Tariff Type,Created At", lines[0])
	assert.Equal(t, `c1,Rice,"Golden, Premium",Japan,Singapore,10,kg,20.00,15.00%,3.00,23.00,AHS (with FTA),2026-03-04 05:06:07`, lines[1])
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "export_cart_1700000000123.csv", Filename(time.UnixMilli(1700000000123)))
}

type fakePutter struct {
	inputs []*s3.PutObjectInput
	body   []byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Archiver(t *testing.T) {
	fp := &fakePutter{}
	a := NewS3Archiver(fp, "exports-bucket", "carts/")

	require.NoError(t, a.Archive(context.Background(), "export_cart_1.csv", []byte("ID\n")))
	require.Len(t, fp.inputs, 1)
	assert.Equal(t, "exports-bucket", *fp.inputs[0].Bucket)
	assert.Equal(t, "carts/export_cart_1.csv", *fp.inputs[0].Key)
	assert.Equal(t, "text/csv", *fp.inputs[0].ContentType)
	assert.Equal(t, "ID\n", string(fp.body))

	fp.err = errors.New("access denied")
	err := a.Archive(context.Background(), "x.csv", nil)
	assert.ErrorContains(t, err, "access denied")
}
