package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/fjod/aquakit/internal/store"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printCatalog(w io.Writer, items []domain.CatalogItem) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tPRICE\tSTOCK")
	for _, item := range items {
		stock := "in stock"
		if !item.InStock() {
			stock = "sold out"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", item.ID, item.Name, item.Kind, item.Price.StringFixed(2), stock)
	}
	tw.Flush()
}

func printCatalogItem(w io.Writer, item *domain.CatalogItem) {
	fmt.Fprintf(w, "%s (%s)\n", item.Name, item.ID)
	fmt.Fprintf(w, "%s\n\n", item.Description)
	fmt.Fprintf(w, "Price:      %s %s\n", item.Price.StringFixed(2), domain.Currency)
	fmt.Fprintf(w, "Stock:      %d\n", item.Stock)
	fmt.Fprintf(w, "Parameters: %s\n", strings.Join(item.Parameters, ", "))
}

func printCart(w io.Writer, v store.View) {
	if len(v.Items) == 0 {
		fmt.Fprintln(w, "Your cart is empty. Run 'kitshop catalog' to browse test kits.")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "LINE\tKIT\tQTY\tUNIT\tAMOUNT")
	for _, line := range v.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			line.LineID, line.DisplayName, line.Quantity,
			line.UnitPrice.StringFixed(2), line.Subtotal().StringFixed(2))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d item(s), subtotal %s %s\n", v.ItemCount(), v.Total.StringFixed(2), domain.Currency)
}

func printQuote(w io.Writer, q domain.Quote) {
	fmt.Fprintf(w, "Subtotal: %10s\n", q.Subtotal.StringFixed(2))
	fmt.Fprintf(w, "Tax:      %10s\n", q.Tax.StringFixed(2))
	fmt.Fprintf(w, "Shipping: %10s\n", q.Shipping.StringFixed(2))
	fmt.Fprintf(w, "Total:    %10s %s\n\n", q.Total.StringFixed(2), q.Currency)
}

func printOrder(w io.Writer, o *domain.Order) {
	fmt.Fprintf(w, "Order %s: %s\n", o.ID, o.Status)
	for _, item := range o.Items {
		fmt.Fprintf(w, "  %d x %s @ %s\n", item.Quantity, item.Name, item.UnitPrice.StringFixed(2))
	}
	fmt.Fprintf(w, "Total %s %s\n", o.Total.StringFixed(2), o.Currency)
	if o.FailureReason != "" {
		fmt.Fprintf(w, "Payment failed: %s\n", o.FailureReason)
	}
}

func printOrders(w io.Writer, orders []domain.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(w, "No orders yet.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ORDER\tSTATUS\tTOTAL\tPLACED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.ID, o.Status, o.Total.StringFixed(2), o.CreatedAt.Format("2006-01-02"))
	}
	tw.Flush()
}

func printResult(w io.Writer, r *domain.LabResult) {
	fmt.Fprintf(w, "%s, sample %s: %s\n", r.KitName, r.SampleID, r.Status)
	if r.Status != domain.ResultCompleted {
		return
	}
	fmt.Fprintf(w, "Overall: %s\n", r.OverallStatus)
	if r.Summary != "" {
		fmt.Fprintf(w, "%s\n", r.Summary)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "\nPARAMETER\tVALUE\tLIMIT\tSTATUS")
	for _, p := range r.Parameters {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n", p.Name, p.Value, p.Unit, p.MaxLimit, p.Status)
	}
	tw.Flush()
	if r.ReportURL != "" {
		fmt.Fprintf(w, "\nReport: %s\n", r.ReportURL)
	}
}

func printResults(w io.Writer, results []domain.LabResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No lab results yet.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "RESULT\tKIT\tSAMPLE\tSTATUS\tOVERALL")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.KitName, r.SampleID, r.Status, r.OverallStatus)
	}
	tw.Flush()
}
