package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"assat-psp/internal/ledger/application"
	ledger "assat-psp/internal/ledger/domain"
)

const dateLayout = "02/01/2006"

// BuildReportPDF renders the collection report of a municipality.
func BuildReportPDF(report application.Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "B", 16)
	pdf.AddPage()

	pdf.CellFormat(0, 10, tr("Relatorio de Arrecadacao - "+report.Municipality.Name), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, "Emitido em: "+report.GeneratedAt.Format("02/01/2006 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 6, tr("Resumo de Auditoria"))
	pdf.Ln(7)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Total de guias: %d", report.Summary.Total))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Guias pagas: %d", report.Summary.Paid))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Guias pendentes: %d", report.Summary.Pending))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr("Total arrecadado: "+ledger.FormatBRL(report.Summary.TotalPaidGross)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr("Saldo em custodia: "+ledger.FormatBRL(report.Municipality.Balance)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(35, 7, "Data", "1", 0, "C", false, 0, "")
	pdf.CellFormat(65, 7, "Tributo", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 7, "Metodo", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 7, "Valor", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, c := range report.Paid {
		pdf.CellFormat(35, 6, paidDate(c), "1", 0, "C", false, 0, "")
		pdf.CellFormat(65, 6, tr(c.TaxType), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, tr(string(c.Method)), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, tr(ledger.FormatBRL(c.Gross)), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var csvHeader = []string{"id", "municipio_id", "tipo_tributo", "valor_bruto", "taxa_psp", "status", "metodo_pagamento", "data_pagamento", "criado_em"}

// BuildReportCSV renders the paid charges as CSV.
func BuildReportCSV(report application.Report) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, c := range report.Paid {
		paidAt := ""
		if c.PaidAt != nil {
			paidAt = c.PaidAt.Format(time.RFC3339)
		}
		record := []string{
			fmt.Sprintf("%d", c.ID),
			fmt.Sprintf("%d", c.MunicipalityID),
			c.TaxType,
			c.Gross.StringFixed(2),
			c.PSPFee.StringFixed(2),
			string(c.Status),
			string(c.Method),
			paidAt,
			c.CreatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportXLSX renders a summary sheet and a paid charges sheet.
func BuildReportXLSX(report application.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "resumo"
	chargesSheet := "guias_pagas"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(chargesSheet); err != nil {
		return nil, err
	}

	totalPaid, _ := report.Summary.TotalPaidGross.Float64()
	balance, _ := report.Municipality.Balance.Float64()
	_ = f.SetCellValue(summarySheet, "A1", "Relatorio de Arrecadacao")
	_ = f.SetCellValue(summarySheet, "A3", "Municipio")
	_ = f.SetCellValue(summarySheet, "B3", report.Municipality.Name)
	_ = f.SetCellValue(summarySheet, "A4", "CNPJ")
	_ = f.SetCellValue(summarySheet, "B4", report.Municipality.CNPJ)
	_ = f.SetCellValue(summarySheet, "A5", "Emitido em")
	_ = f.SetCellValue(summarySheet, "B5", report.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Total de guias")
	_ = f.SetCellValue(summarySheet, "B6", report.Summary.Total)
	_ = f.SetCellValue(summarySheet, "A7", "Guias pagas")
	_ = f.SetCellValue(summarySheet, "B7", report.Summary.Paid)
	_ = f.SetCellValue(summarySheet, "A8", "Guias pendentes")
	_ = f.SetCellValue(summarySheet, "B8", report.Summary.Pending)
	_ = f.SetCellValue(summarySheet, "A9", "Total arrecadado")
	_ = f.SetCellValue(summarySheet, "B9", totalPaid)
	_ = f.SetCellValue(summarySheet, "A10", "Saldo em custodia")
	_ = f.SetCellValue(summarySheet, "B10", balance)

	_ = f.SetCellValue(chargesSheet, "A1", "Data")
	_ = f.SetCellValue(chargesSheet, "B1", "Tributo")
	_ = f.SetCellValue(chargesSheet, "C1", "Metodo")
	_ = f.SetCellValue(chargesSheet, "D1", "Valor")
	for i, c := range report.Paid {
		row := i + 2
		gross, _ := c.Gross.Float64()
		_ = f.SetCellValue(chargesSheet, fmt.Sprintf("A%d", row), paidDate(c))
		_ = f.SetCellValue(chargesSheet, fmt.Sprintf("B%d", row), c.TaxType)
		_ = f.SetCellValue(chargesSheet, fmt.Sprintf("C%d", row), string(c.Method))
		_ = f.SetCellValue(chargesSheet, fmt.Sprintf("D%d", row), gross)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func paidDate(c ledger.Charge) string {
	if c.PaidAt == nil {
		return "-"
	}
	return c.PaidAt.Format(dateLayout)
}
