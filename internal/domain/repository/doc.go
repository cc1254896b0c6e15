// Package repository define las interfaces de persistencia que consume el
// login coordinator. Los drivers viven en internal/store/{pg,sqlite}.
//
// Toda escritura de reconciliación corre dentro de Store.InTx; la unicidad
// de (provider, provider_user_id) la garantiza el índice único, no el código.
package repository
