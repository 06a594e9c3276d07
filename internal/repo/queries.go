package repo

import "strings"

const orderBaseColumns = "id, numero_telefono, nombre_cliente, tamano, agregado, bebida, total, created_at, estado"

// listOrdersQuery is shared by both dialects since it takes no parameters.
func listOrdersQuery(caps SchemaCapabilities) string {
	cols := []string{orderBaseColumns}
	if caps.ProofReceived {
		cols = append(cols, columnProofReceived)
	}
	if caps.ProofURL {
		cols = append(cols, columnProofURL)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM pedidos ORDER BY created_at DESC"
}

func orderScanTargets(o *Order, caps SchemaCapabilities) []any {
	targets := []any{&o.ID, &o.CustomerID, &o.CustomerName, &o.Size, &o.Addon, &o.Drink, &o.Total, &o.CreatedAt, &o.Status}
	if caps.ProofReceived {
		targets = append(targets, &o.ProofReceived)
	}
	if caps.ProofURL {
		targets = append(targets, &o.ProofURL)
	}
	return targets
}
