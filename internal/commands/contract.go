package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/beesaferoot/leasekeeper/internal/app"
	"github.com/beesaferoot/leasekeeper/internal/lease"
	"github.com/beesaferoot/leasekeeper/models"
)

// withApp loads configuration, runs fn and releases the database.
func withApp(fn func(a *app.App) error) error {
	a, err := app.Load()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

func actorFlag(cmd *cobra.Command) lease.Actor {
	actor, _ := cmd.Flags().GetString("actor")
	return lease.Actor(strings.TrimSpace(actor))
}

// ContractCmd groups the contract lifecycle commands.
func ContractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Manage lease contracts",
	}
	cmd.PersistentFlags().String("actor", "", "Identity recorded in the contract history")

	cmd.AddCommand(
		contractCreateCmd(),
		contractUpdateCmd(),
		contractRenewCmd(),
		contractTerminateCmd(),
		contractDeleteCmd(),
		contractShowCmd(),
		contractListCmd(),
		contractExpiringCmd(),
		contractHistoryCmd(),
		contractNextNumberCmd(),
	)
	return cmd
}

func addTermFlags(cmd *cobra.Command) {
	cmd.Flags().Uint("apartment", 0, "Apartment id")
	cmd.Flags().Uint("resident", 0, "Resident id")
	cmd.Flags().String("type", "", "Contract type")
	cmd.Flags().String("signed", "", "Signed date (YYYY-MM-DD)")
	cmd.Flags().String("start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "End date (YYYY-MM-DD), empty for open-ended")
	cmd.Flags().Float64("deposit", 0, "Deposit amount")
	cmd.Flags().String("notes", "", "Free form notes")
}

// applyTermFlags copies every flag the user set onto c.
func applyTermFlags(cmd *cobra.Command, c *models.Contract) error {
	flags := cmd.Flags()
	if flags.Changed("apartment") {
		c.ApartmentID, _ = flags.GetUint("apartment")
	}
	if flags.Changed("resident") {
		c.ResidentID, _ = flags.GetUint("resident")
	}
	if flags.Changed("type") {
		c.ContractType, _ = flags.GetString("type")
	}
	if flags.Changed("deposit") {
		c.DepositAmount, _ = flags.GetFloat64("deposit")
	}
	if flags.Changed("notes") {
		c.Notes, _ = flags.GetString("notes")
	}
	if flags.Changed("start") {
		v, _ := flags.GetString("start")
		start, err := parseDate("start", v)
		if err != nil {
			return err
		}
		c.StartDate = start
	}
	for _, name := range []string{"signed", "end"} {
		if !flags.Changed(name) {
			continue
		}
		v, _ := flags.GetString(name)
		d, err := parseOptionalDate(name, v)
		if err != nil {
			return err
		}
		if name == "signed" {
			c.SignedDate = d
		} else {
			c.EndDate = d
		}
	}
	return nil
}

func contractCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a contract and mark its apartment rented",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := &models.Contract{}
			if err := applyTermFlags(cmd, in); err != nil {
				return err
			}
			return withApp(func(a *app.App) error {
				created, err := a.Engine.CreateContract(cmd.Context(), actorFlag(cmd), in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created contract %s (id %d)\n", created.ContractNumber, created.ID)
				return nil
			})
		},
	}
	addTermFlags(cmd)
	return cmd
}

func contractUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change the terms of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(a *app.App) error {
				current, err := a.Engine.GetContract(cmd.Context(), id)
				if err != nil {
					return err
				}
				current.Apartment, current.Resident = nil, nil
				if err := applyTermFlags(cmd, current); err != nil {
					return err
				}
				if err := a.Engine.UpdateContract(cmd.Context(), actorFlag(cmd), current); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated contract %s\n", current.ContractNumber)
				return nil
			})
		},
	}
	addTermFlags(cmd)
	return cmd
}

func contractRenewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renew <id>",
		Short: "Move the end date of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			v, _ := cmd.Flags().GetString("end")
			end, err := parseDate("end", v)
			if err != nil {
				return err
			}
			return withApp(func(a *app.App) error {
				if err := a.Engine.RenewContract(cmd.Context(), actorFlag(cmd), id, end); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renewed contract %d until %s\n", id, end.Format(time.DateOnly))
				return nil
			})
		},
	}
	cmd.Flags().String("end", "", "New end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func contractTerminateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terminate <id>",
		Short: "Terminate a contract today and free its apartment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			return withApp(func(a *app.App) error {
				if err := a.Engine.TerminateContract(cmd.Context(), actorFlag(cmd), id, reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Terminated contract %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().String("reason", "", "Termination reason")
	return cmd
}

func contractDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft delete a contract, keeping its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(a *app.App) error {
				if err := a.Engine.DeleteContract(cmd.Context(), actorFlag(cmd), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted contract %d\n", id)
				return nil
			})
		},
	}
}

func contractShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|number>",
		Short: "Print a contract as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				var (
					c   *models.Contract
					err error
				)
				if id, parseErr := parseID(args[0]); parseErr == nil {
					c, err = a.Engine.GetContract(cmd.Context(), id)
				} else {
					c, err = a.Engine.GetContractByNumber(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), c)
			})
		},
	}
}

func contractListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active contracts of an apartment or all contracts of a building",
		RunE: func(cmd *cobra.Command, args []string) error {
			apartmentID, _ := cmd.Flags().GetUint("apartment")
			buildingID, _ := cmd.Flags().GetUint("building")
			if (apartmentID == 0) == (buildingID == 0) {
				return fmt.Errorf("exactly one of --apartment or --building is required")
			}
			return withApp(func(a *app.App) error {
				var (
					contracts []models.Contract
					err       error
				)
				if apartmentID != 0 {
					contracts, err = a.Engine.ListByApartment(cmd.Context(), apartmentID)
				} else {
					contracts, err = a.Engine.ListByBuilding(cmd.Context(), buildingID)
				}
				if err != nil {
					return err
				}
				printContracts(cmd.OutOrStdout(), contracts)
				return nil
			})
		},
	}
	cmd.Flags().Uint("apartment", 0, "Apartment id")
	cmd.Flags().Uint("building", 0, "Building id")
	return cmd
}

func contractExpiringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expiring",
		Short: "List contracts ending within the next N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			days, _ := cmd.Flags().GetInt("days")
			return withApp(func(a *app.App) error {
				contracts, err := a.Engine.ListExpiring(cmd.Context(), days)
				if err != nil {
					return err
				}
				printContracts(cmd.OutOrStdout(), contracts)
				return nil
			})
		},
	}
	cmd.Flags().Int("days", 30, "Look-ahead window in days")
	return cmd
}

func contractHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the audit trail of a contract, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(func(a *app.App) error {
				entries, err := a.Engine.History(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-6s  %-10s  %-24s  %-12s  %s\n", "ID", "Action", "At", "By", "Reason")
				for _, e := range entries {
					by := "-"
					if e.CreatedBy != nil {
						by = *e.CreatedBy
					}
					fmt.Fprintf(out, "%-6d  %-10s  %-24s  %-12s  %s\n", e.ID, e.Action, e.CreatedAt.Format(time.RFC3339), by, e.Reason)
				}
				return nil
			})
		},
	}
}

func contractNextNumberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next-number",
		Short: "Preview the next contract number for today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				number, err := a.Engine.GenerateContractNumber(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), number)
				return nil
			})
		},
	}
}

func printContracts(out io.Writer, contracts []models.Contract) {
	if len(contracts) == 0 {
		fmt.Fprintln(out, "No contracts found.")
		return
	}
	fmt.Fprintf(out, "%-6s  %-16s  %-10s  %-14s  %-10s  %-10s\n", "ID", "Number", "Apartment", "Status", "Start", "End")
	for _, c := range contracts {
		end := "-"
		if c.EndDate != nil {
			end = c.EndDate.Format(time.DateOnly)
		}
		fmt.Fprintf(out, "%-6d  %-16s  %-10d  %-14s  %-10s  %-10s\n",
			c.ID, c.ContractNumber, c.ApartmentID, c.Status, c.StartDate.Format(time.DateOnly), end)
	}
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid contract id %q", s)
	}
	return uint(id), nil
}

func parseDate(flag, value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", flag, err)
	}
	return t, nil
}

func parseOptionalDate(flag, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := parseDate(flag, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
