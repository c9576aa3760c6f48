// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

package command

// storeOptionsHelp documents the options every command that talks to a
// secret store accepts.
const storeOptionsHelp = `
Store options:

  -config=path         HCL file with default settings. Defaults to
                       $TOFU_VAULT_CONFIG.

  -store=name          Secret store: vault, openbao, consul, kubernetes, pg,
                       filesystem or inmem. Defaults to vault.

  -token=token         Store token. Defaults to $TOFU_VAULT_TOKEN, then to
                       the store's own environment ($BAO_TOKEN, $VAULT_TOKEN
                       or $CONSUL_HTTP_TOKEN) or the kubeconfig.

  -vault-url=url       OpenBao or Vault address. Defaults to $BAO_ADDR,
                       $VAULT_ADDR or 127.0.0.1:8200. https:// is assumed
                       when no scheme is given.

  -mount-point=path    KV v2 mount. Defaults to "secret".

  -namespace=ns        OpenBao or Vault namespace.

  -consul-address=addr Consul agent. Defaults to $CONSUL_HTTP_ADDR.

  -consul-prefix=path  Key prefix in Consul. Defaults to
                       "tofu-vault-backend".

  -consul-datacenter=dc
                       Consul datacenter.

  -k8s-config-path=path
                       kubeconfig file. Defaults to $KUBECONFIG, then
                       ~/.kube/config, then the in-cluster account.

  -k8s-context=name    kubeconfig context. Defaults to the current one.

  -k8s-namespace=ns    Namespace of the Secrets. Defaults to the context's.

  -k8s-secret-prefix=p Start of every Secret name. Defaults to
                       "tofu-vault".

  -pg-conn-str=dsn     Postgres connection string. Defaults to
                       $PG_CONN_STR. The pg store ignores -token.

  -pg-schema=name      Postgres schema. Defaults to $PG_SCHEMA_NAME, then
                       "tofu_vault_backend".

  -pg-table=name       Postgres table. Defaults to "secrets".

  -pg-skip-schema-creation
                       Expect the schema and table to exist already.

  -pg-max-entry-size=n Largest entry the pg store accepts, in bytes. 0
                       means no limit.

  -fs-root=dir         Directory of the filesystem store.

  -fs-max-entry-size=n Largest entry the filesystem store accepts, in
                       bytes. 0 means no limit.

  -chunk-size=n        Largest entry the store accepts, in bytes, or -1 to
                       discover it on every write. Defaults to -1.

  -chunk-margin=n      Bytes of -chunk-size reserved for request overhead.
                       Defaults to 1000.

  -v                   Increase log verbosity. Repeat for more.

  -log-level=level     Log level: TRACE, DEBUG, INFO, WARN, ERROR or OFF.
`
